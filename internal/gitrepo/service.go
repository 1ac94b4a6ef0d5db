// Package gitrepo keeps one git repository per template. Every saved revision
// of the section tree is a commit on main; releases are tags.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clausebook/api/internal/contract"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	treeFile   = "template.json"
	mainBranch = "main"
)

var (
	ErrNoChanges     = errors.New("tree unchanged since last commit")
	ErrReleaseExists = errors.New("release already exists")
)

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
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

// EnsureTemplateRepo creates the repository with initial as its first commit.
// An existing repository is left alone.
func (s *Service) EnsureTemplateRepo(templateID string, initial contract.SerializedTree, author string) error {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(templateID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	hash, err := s.writeAndCommit(repo, initial, author, "Create template", true)
	if err != nil {
		return err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitTemplate records tree on main. When summary is empty the message is
// built from the changed sections and their descriptions of change. It fails
// with ErrNoChanges when tree equals the head commit.
func (s *Service) CommitTemplate(templateID string, tree contract.SerializedTree, author, summary string) (Commit, error) {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(templateID))
	if err != nil {
		return Commit{}, fmt.Errorf("open repo: %w", err)
	}

	head, err := headTree(repo)
	if err != nil {
		return Commit{}, err
	}
	changes := DiffSections(head, tree)
	if len(changes) == 0 {
		return Commit{}, ErrNoChanges
	}

	hash, err := s.writeAndCommit(repo, tree, author, CommitMessage(summary, changes), false)
	if err != nil {
		return Commit{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

func (s *Service) History(templateID string, limit int) ([]Commit, error) {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(templateID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
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

// GetContentByHash returns the tree stored at a commit. Abbreviated hashes
// and tag names are accepted.
func (s *Service) GetContentByHash(templateID, hash string) (contract.SerializedTree, error) {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(templateID))
	if err != nil {
		return contract.SerializedTree{}, fmt.Errorf("open repo: %w", err)
	}
	commitObj, err := resolveCommit(repo, hash)
	if err != nil {
		return contract.SerializedTree{}, err
	}
	return readTreeFromCommit(commitObj)
}

// TagRelease tags the commit at hash as a named release.
func (s *Service) TagRelease(templateID, hash, name, tagger string) (Commit, error) {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(templateID))
	if err != nil {
		return Commit{}, fmt.Errorf("open repo: %w", err)
	}
	commitObj, err := resolveCommit(repo, hash)
	if err != nil {
		return Commit{}, err
	}

	_, err = repo.CreateTag(name, commitObj.Hash, &git.CreateTagOptions{
		Tagger:  signature(tagger, s.now()),
		Message: "Release " + name,
	})
	if errors.Is(err, git.ErrTagExists) {
		return Commit{}, fmt.Errorf("%w: %s", ErrReleaseExists, name)
	}
	if err != nil {
		return Commit{}, fmt.Errorf("create tag: %w", err)
	}
	return toCommit(commitObj), nil
}

// DeleteTag removes a release tag. A missing tag is not an error.
func (s *Service) DeleteTag(templateID, name string) error {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(templateID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	if err := repo.DeleteTag(name); err != nil && !errors.Is(err, git.ErrTagNotFound) {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

func (s *Service) repoPath(templateID string) string {
	return filepath.Join(s.baseDir, templateID)
}

func (s *Service) templateLock(templateID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[templateID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[templateID] = lock
	return lock
}

func (s *Service) writeAndCommit(repo *git.Repository, tree contract.SerializedTree, author, message string, allowEmpty bool) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal tree: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, treeFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", treeFile, err)
	}
	if _, err := worktree.Add(treeFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add tree: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author:            signature(author, s.now()),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit tree: %w", err)
	}
	return hash, nil
}

func headTree(repo *git.Repository) (contract.SerializedTree, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return contract.SerializedTree{}, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return contract.SerializedTree{}, fmt.Errorf("load head commit: %w", err)
	}
	return readTreeFromCommit(commitObj)
}

func readTreeFromCommit(commitObj *object.Commit) (contract.SerializedTree, error) {
	file, err := commitObj.File(treeFile)
	if err != nil {
		return contract.SerializedTree{}, fmt.Errorf("load %s from commit: %w", treeFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return contract.SerializedTree{}, fmt.Errorf("read tree bytes: %w", err)
	}
	var tree contract.SerializedTree
	if err := json.Unmarshal([]byte(contents), &tree); err != nil {
		return contract.SerializedTree{}, fmt.Errorf("decode commit tree: %w", err)
	}
	return tree, nil
}

func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	var hash plumbing.Hash
	if len(rev) == 40 {
		hash = plumbing.NewHash(rev)
	} else {
		resolved, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return nil, fmt.Errorf("resolve revision %s: %w", rev, err)
		}
		hash = *resolved
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", rev, err)
	}
	return commitObj, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(name string, when time.Time) *object.Signature {
	if strings.TrimSpace(name) == "" {
		name = "Clausebook"
	}
	return &object.Signature{
		Name:  name,
		Email: fmt.Sprintf("%s@local.clausebook.dev", sanitizeEmail(name)),
		When:  when,
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
