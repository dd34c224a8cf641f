// Package history keeps every saved version of a page's document in a git
// repository per world, one file per page.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	ErrRevisionNotFound = errors.New("revision not found")
	errUnsafeID         = errors.New("identifier is not path safe")
)

type Author struct {
	Name  string
	Email string
}

type Revision struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"shortHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Commit records doc as the newest version of the page. When the document
// is unchanged from the last committed version nothing is written and
// changed is false.
func (s *Service) Commit(worldID, pageID string, doc json.RawMessage, author Author, message string) (rev Revision, changed bool, err error) {
	if err := checkIDs(worldID, pageID); err != nil {
		return Revision{}, false, err
	}
	lock := s.worldLock(worldID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(worldID)
	if err != nil {
		return Revision{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}

	rel := pagePath(pageID)
	abs := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	payload := formatDoc(doc)

	if previous, err := os.ReadFile(abs); err == nil && bytes.Equal(normalizeDoc(previous), normalizeDoc(payload)) {
		return Revision{}, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Revision{}, false, fmt.Errorf("create pages dir: %w", err)
	}
	if err := os.WriteFile(abs, payload, 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write %s: %w", rel, err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return Revision{}, false, fmt.Errorf("git add %s: %w", rel, err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{Author: s.signature(author)})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit %s: %w", rel, err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// Remove drops the files of deleted pages in one commit. Pages that never
// had a saved version are skipped.
func (s *Service) Remove(worldID string, pageIDs []string, author Author, message string) error {
	if err := checkIDs(append([]string{worldID}, pageIDs...)...); err != nil {
		return err
	}
	lock := s.worldLock(worldID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(worldID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	removed := 0
	for _, pageID := range pageIDs {
		rel := pagePath(pageID)
		if _, err := os.Stat(filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if _, err := worktree.Remove(rel); err != nil {
			return fmt.Errorf("git rm %s: %w", rel, err)
		}
		removed++
	}
	if removed == 0 {
		return nil
	}
	if _, err := worktree.Commit(message, &git.CommitOptions{Author: s.signature(author)}); err != nil {
		return fmt.Errorf("commit removal: %w", err)
	}
	return nil
}

// History lists the commits that touched the page, newest first.
func (s *Service) History(worldID, pageID string, limit int) ([]Revision, error) {
	if err := checkIDs(worldID, pageID); err != nil {
		return nil, err
	}
	lock := s.worldLock(worldID)
	lock.Lock()
	defer lock.Unlock()

	items := make([]Revision, 0)
	repo, err := git.PlainOpen(s.repoPath(worldID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	fileName := pagePath(pageID)
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &fileName})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// At returns the page's document as of the given commit.
func (s *Service) At(worldID, pageID, hash string) (json.RawMessage, Revision, error) {
	if err := checkIDs(worldID, pageID); err != nil {
		return nil, Revision{}, err
	}
	lock := s.worldLock(worldID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(worldID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return nil, Revision{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, Revision{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, Revision{}, ErrRevisionNotFound
	}
	file, err := commitObj.File(pagePath(pageID))
	if err != nil {
		return nil, Revision{}, ErrRevisionNotFound
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, Revision{}, fmt.Errorf("read %s: %w", file.Name, err)
	}
	return json.RawMessage(bytes.TrimSpace([]byte(contents))), toRevision(commitObj), nil
}

// RemoveWorld deletes the world's repository.
func (s *Service) RemoveWorld(worldID string) error {
	if err := checkIDs(worldID); err != nil {
		return err
	}
	lock := s.worldLock(worldID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(worldID)); err != nil {
		return fmt.Errorf("remove world history: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(worldID string) (*git.Repository, error) {
	dir := s.repoPath(worldID)
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(worldID string) string {
	return filepath.Join(s.baseDir, worldID)
}

func (s *Service) worldLock(worldID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[worldID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[worldID] = lock
	return lock
}

func (s *Service) signature(author Author) *object.Signature {
	name := strings.TrimSpace(author.Name)
	if name == "" {
		name = "World Builder"
	}
	email := strings.TrimSpace(author.Email)
	if email == "" {
		email = fmt.Sprintf("%s@users.worldbuilder.local", sanitizeEmail(name))
	}
	return &object.Signature{Name: name, Email: email, When: s.now()}
}

func pagePath(pageID string) string {
	return path.Join("pages", pageID+".json")
}

func checkIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
			return fmt.Errorf("%w: %q", errUnsafeID, id)
		}
	}
	return nil
}

func formatDoc(doc json.RawMessage) []byte {
	var buf bytes.Buffer
	if len(bytes.TrimSpace(doc)) == 0 {
		buf.WriteString("null")
	} else if err := json.Indent(&buf, doc, "", "  "); err != nil {
		buf.Reset()
		buf.Write(doc)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func normalizeDoc(doc []byte) []byte {
	if len(doc) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return bytes.TrimSpace(doc)
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
}

func toRevision(commitObj *object.Commit) Revision {
	hash := commitObj.Hash.String()
	return Revision{
		Hash:      hash,
		ShortHash: hash[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		Email:     commitObj.Author.Email,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, ErrRevisionNotFound
	}
	return *resolved, nil
}
