package github

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/entry"
)

// uploadConcurrency bounds parallel blob uploads during a persist.
const uploadConcurrency = 5

// fileUpload is one file of a pending commit after its blob is stored.
type fileUpload struct {
	Path    string
	NewPath string
	Slug    string
	SHA     string
}

// persistFiles writes all files in one commit on the content branch. When
// the branch is protected, the commit lands on a dedicated change branch and
// a pull request is opened against the content branch instead.
func (c *Client) persistFiles(
	ctx context.Context,
	dataFiles []entry.DataFile,
	mediaFiles []entry.MediaFile,
	message, authorLogin string,
) error {
	uploads, err := c.uploadAll(ctx, dataFiles, mediaFiles)
	if err != nil {
		return err
	}

	branch, err := c.getBranch(ctx, c.branch)
	if err != nil {
		return fmt.Errorf("resolve branch %s: %w", c.branch, err)
	}

	headCommit, err := c.getCommit(ctx, branch.Commit.SHA)
	if err != nil {
		return fmt.Errorf("resolve head commit: %w", err)
	}

	entries, err := c.changeTreeEntries(ctx, uploads)
	if err != nil {
		return err
	}

	newTree, err := c.createTree(ctx, headCommit.Tree.SHA, entries)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	newCommit, err := c.createCommit(ctx, message, newTree.SHA, []string{headCommit.SHA})
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	if !branch.Protected {
		if err := c.patchRef(ctx, c.branch, newCommit.SHA, false); err != nil {
			return fmt.Errorf("advance branch %s: %w", c.branch, err)
		}
		c.logger.InfoContext(ctx, "committed", "branch", c.branch, "sha", newCommit.SHA)
		return nil
	}

	// Protected branch: park the commit on a change branch and open a PR.
	slug := "media"
	if len(dataFiles) > 0 {
		slug = dataFiles[0].Slug
	}
	changeBranch := changeBranchName(slug, authorLogin, time.Now())
	if err := c.createOrUpdateRef(ctx, changeBranch, newCommit.SHA); err != nil {
		return fmt.Errorf("create change branch: %w", err)
	}
	if err := c.createPull(ctx, message, changeBranch, c.branch); err != nil {
		return fmt.Errorf("open pull request: %w", err)
	}
	c.logger.InfoContext(ctx, "opened pull request", "branch", changeBranch, "base", c.branch)
	return nil
}

// uploadAll stores every file's blob, in parallel.
func (c *Client) uploadAll(
	ctx context.Context,
	dataFiles []entry.DataFile,
	mediaFiles []entry.MediaFile,
) ([]fileUpload, error) {
	uploads := make([]fileUpload, len(dataFiles)+len(mediaFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, f := range dataFiles {
		g.Go(func() error {
			sha, err := c.uploadBlob(gctx, []byte(f.Raw))
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Path, err)
			}
			uploads[i] = fileUpload{Path: f.Path, NewPath: f.NewPath, Slug: f.Slug, SHA: sha}
			return nil
		})
	}
	for i, m := range mediaFiles {
		g.Go(func() error {
			sha, err := c.uploadBlob(gctx, m.Content)
			if err != nil {
				return fmt.Errorf("upload %s: %w", m.Path, err)
			}
			uploads[len(dataFiles)+i] = fileUpload{Path: m.Path, SHA: sha}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return uploads, nil
}

// changeTreeEntries turns uploads into tree writes. A rename moves the whole
// source directory subtree: every existing blob is deleted at its old path
// and re-added at the new one with its hash preserved, except the edited
// file which takes its freshly uploaded blob.
func (c *Client) changeTreeEntries(ctx context.Context, uploads []fileUpload) ([]treeWrite, error) {
	var entries []treeWrite
	for _, up := range uploads {
		if up.NewPath == "" || up.NewPath == up.Path {
			entries = append(entries, treeWrite{Path: up.Path, Mode: blobMode, Type: blobType, SHA: shaPtr(up.SHA)})
			continue
		}

		moved, err := c.renameEntries(ctx, up)
		if err != nil {
			return nil, err
		}
		entries = append(entries, moved...)
	}
	return entries, nil
}

func (c *Client) renameEntries(ctx context.Context, up fileUpload) ([]treeWrite, error) {
	oldDir := path.Dir(up.Path)
	newDir := path.Dir(up.NewPath)

	subtree, err := c.listFiles(ctx, oldDir, renameListDepth)
	if err != nil {
		return nil, fmt.Errorf("list %s for rename: %w", oldDir, err)
	}

	var entries []treeWrite
	for _, item := range subtree {
		sha := item.SHA
		target := path.Join(newDir, strings.TrimPrefix(item.Path, oldDir+"/"))
		if item.Path == up.Path {
			sha = up.SHA
			target = up.NewPath
		}
		entries = append(entries,
			treeWrite{Path: item.Path, Mode: blobMode, Type: blobType, SHA: nil},
			treeWrite{Path: target, Mode: blobMode, Type: blobType, SHA: shaPtr(sha)},
		)
	}

	// The old path may not exist yet (new entry saved directly to a custom
	// path); make sure the edited file itself is always written.
	if !containsPath(subtree, up.Path) {
		entries = append(entries, treeWrite{Path: up.NewPath, Mode: blobMode, Type: blobType, SHA: shaPtr(up.SHA)})
	}
	return entries, nil
}

// deleteFiles removes paths in one commit. Protected branches get the same
// change-branch treatment as persistFiles.
func (c *Client) deleteFiles(ctx context.Context, paths []string, message, authorLogin string) error {
	branch, err := c.getBranch(ctx, c.branch)
	if err != nil {
		return fmt.Errorf("resolve branch %s: %w", c.branch, err)
	}
	headCommit, err := c.getCommit(ctx, branch.Commit.SHA)
	if err != nil {
		return fmt.Errorf("resolve head commit: %w", err)
	}

	entries := make([]treeWrite, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, treeWrite{Path: p, Mode: blobMode, Type: blobType, SHA: nil})
	}

	newTree, err := c.createTree(ctx, headCommit.Tree.SHA, entries)
	if apperrors.IsAPIStatus(err, http.StatusNotFound, http.StatusUnprocessableEntity) {
		return fmt.Errorf("%w: %v", apperrors.ErrEntryNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	newCommit, err := c.createCommit(ctx, message, newTree.SHA, []string{headCommit.SHA})
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	if !branch.Protected {
		if err := c.patchRef(ctx, c.branch, newCommit.SHA, false); err != nil {
			return fmt.Errorf("advance branch %s: %w", c.branch, err)
		}
		return nil
	}

	changeBranch := changeBranchName(path.Base(paths[0]), authorLogin, time.Now())
	if err := c.createOrUpdateRef(ctx, changeBranch, newCommit.SHA); err != nil {
		return fmt.Errorf("create change branch: %w", err)
	}
	if err := c.createPull(ctx, message, changeBranch, c.branch); err != nil {
		return fmt.Errorf("open pull request: %w", err)
	}
	return nil
}

// changeBranchName derives the branch used to propose a change against a
// protected content branch.
func changeBranchName(slug, login string, now time.Time) string {
	if login == "" {
		login = "anonymous"
	}
	return fmt.Sprintf("change-%s-by-%s-at-%d", slug, login, now.Unix())
}

func containsPath(files []fileInfo, p string) bool {
	for _, f := range files {
		if f.Path == p {
			return true
		}
	}
	return false
}

func shaPtr(sha string) *string {
	return &sha
}
