package projectsystem

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/steveyegge/projsync/internal/workspace"
)

// TextContainer is an externally owned text buffer, such as an open editor,
// that supplies the text of a document.
type TextContainer interface {
	CurrentText() string
}

type textChange struct {
	id   workspace.DocumentID
	text string
}

// documentBatch is the detached, immutable content of one flush for one
// document kind.
type documentBatch struct {
	kind        workspace.DocumentKind
	added       []workspace.DocumentInfo
	removed     []workspace.DocumentID
	textChanges []textChange
	order       []workspace.DocumentID
}

func (b documentBatch) empty() bool {
	return len(b.added) == 0 && len(b.removed) == 0 && len(b.textChanges) == 0 && b.order == nil
}

// apply folds the batch into acc.
func (b documentBatch) apply(projectID workspace.ProjectID, acc *workspace.ChangeAccumulator) {
	if len(b.removed) > 0 {
		acc.ApplyDocumentChange(acc.Solution().RemoveDocuments(b.removed), workspace.DocumentRemovedKind(b.kind), b.removed...)
	}
	if len(b.added) > 0 {
		ids := make([]workspace.DocumentID, len(b.added))
		for i, d := range b.added {
			ids[i] = d.ID
		}
		acc.ApplyDocumentChange(acc.Solution().AddDocuments(b.added), workspace.DocumentAddedKind(b.kind), ids...)
	}
	for _, tc := range b.textChanges {
		if !acc.Solution().ContainsDocument(tc.id) {
			continue
		}
		acc.ApplyDocumentChange(acc.Solution().WithDocumentText(tc.id, tc.text), workspace.DocumentChangedKind(b.kind), tc.id)
	}
	if b.order != nil {
		project, ok := acc.Solution().Project(projectID)
		if !ok {
			return
		}
		acc.ApplyProjectChange(projectID, acc.Solution().WithProjectDocumentsOrder(projectID, reconcileOrder(b.order, project.DocumentIDs(b.kind))))
	}
}

// reconcileOrder returns current reordered by requested. Requested ids that
// no longer exist are dropped; current ids missing from requested keep
// their relative order at the end.
func reconcileOrder(requested, current []workspace.DocumentID) []workspace.DocumentID {
	out := make([]workspace.DocumentID, 0, len(current))
	for _, id := range requested {
		if slices.Contains(current, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range current {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// documentCollection tracks one kind of document of one project. It is
// guarded by the factory gate.
type documentCollection struct {
	projectID workspace.ProjectID
	kind      workspace.DocumentKind

	// pathToID includes documents that are only pending in the batch.
	pathToID      map[string]workspace.DocumentID
	idToPath      map[workspace.DocumentID]string
	containerToID map[TextContainer]workspace.DocumentID

	added       []workspace.DocumentInfo
	removed     []workspace.DocumentID
	textChanges []textChange
	order       []workspace.DocumentID
}

func newDocumentCollection(projectID workspace.ProjectID, kind workspace.DocumentKind) *documentCollection {
	return &documentCollection{
		projectID:     projectID,
		kind:          kind,
		pathToID:      make(map[string]workspace.DocumentID),
		idToPath:      make(map[workspace.DocumentID]string),
		containerToID: make(map[TextContainer]workspace.DocumentID),
	}
}

func (c *documentCollection) contains(path string) bool {
	_, ok := c.pathToID[normalizePath(path)]
	return ok
}

func (c *documentCollection) addFile(path string, folders []string, generated bool, text string) (workspace.DocumentID, error) {
	key := normalizePath(path)
	if _, ok := c.pathToID[key]; ok {
		return workspace.DocumentID{}, fmt.Errorf("%w: %s document %s", ErrAlreadyAdded, c.kind, path)
	}

	id := workspace.NewDocumentID(c.projectID)
	c.pathToID[key] = id
	c.idToPath[id] = key
	c.added = append(c.added, workspace.DocumentInfo{
		ID:             id,
		Kind:           c.kind,
		Name:           filepath.Base(path),
		FilePath:       path,
		Folders:        slices.Clone(folders),
		SourceCodeKind: sourceCodeKindFor(path),
		IsGenerated:    generated,
		Text:           text,
	})
	return id, nil
}

func (c *documentCollection) removeFile(path string) error {
	id, ok := c.pathToID[normalizePath(path)]
	if !ok {
		return fmt.Errorf("%w: %s document %s", ErrNotFound, c.kind, path)
	}
	c.removeID(id)
	return nil
}

// removeID forgets id. A document added in the same batch never reaches the
// workspace.
func (c *documentCollection) removeID(id workspace.DocumentID) {
	delete(c.pathToID, c.idToPath[id])
	delete(c.idToPath, id)
	for container, other := range c.containerToID {
		if other == id {
			delete(c.containerToID, container)
		}
	}
	c.textChanges = slices.DeleteFunc(c.textChanges, func(tc textChange) bool { return tc.id == id })

	if i := slices.IndexFunc(c.added, func(d workspace.DocumentInfo) bool { return d.ID == id }); i >= 0 {
		c.added = slices.Delete(c.added, i, i+1)
		return
	}
	c.removed = append(c.removed, id)
}

func (c *documentCollection) addTextContainer(container TextContainer, path string, folders []string) (workspace.DocumentID, error) {
	if _, ok := c.containerToID[container]; ok {
		return workspace.DocumentID{}, fmt.Errorf("%w: text container for %s", ErrAlreadyAdded, path)
	}
	id, err := c.addFile(path, folders, false, container.CurrentText())
	if err != nil {
		return workspace.DocumentID{}, err
	}
	c.containerToID[container] = id
	return id, nil
}

func (c *documentCollection) removeTextContainer(container TextContainer) error {
	id, ok := c.containerToID[container]
	if !ok {
		return fmt.Errorf("%w: text container", ErrNotFound)
	}
	c.removeID(id)
	return nil
}

func (c *documentCollection) containerDocument(container TextContainer) (workspace.DocumentID, bool) {
	id, ok := c.containerToID[container]
	return id, ok
}

// updateText queues new text for id. A document still pending in the batch
// has its text replaced in place.
func (c *documentCollection) updateText(id workspace.DocumentID, text string) {
	if i := slices.IndexFunc(c.added, func(d workspace.DocumentInfo) bool { return d.ID == id }); i >= 0 {
		c.added[i].Text = text
		return
	}
	c.textChanges = append(c.textChanges, textChange{id: id, text: text})
}

func (c *documentCollection) reorder(paths []string) error {
	if len(paths) != len(c.pathToID) {
		return fmt.Errorf("%w: got %d paths, project has %d", ErrInvalidOrder, len(paths), len(c.pathToID))
	}
	ids := make([]workspace.DocumentID, 0, len(paths))
	for _, path := range paths {
		id, ok := c.pathToID[normalizePath(path)]
		if !ok {
			return fmt.Errorf("%w: %s document %s", ErrNotFound, c.kind, path)
		}
		if slices.Contains(ids, id) {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidOrder, path)
		}
		ids = append(ids, id)
	}
	c.order = ids
	return nil
}

// take detaches the pending batch and resets the collection to idle.
func (c *documentCollection) take() documentBatch {
	b := documentBatch{
		kind:        c.kind,
		added:       c.added,
		removed:     c.removed,
		textChanges: c.textChanges,
		order:       c.order,
	}
	c.added = nil
	c.removed = nil
	c.textChanges = nil
	c.order = nil
	return b
}

func sourceCodeKindFor(path string) workspace.SourceCodeKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csx", ".vbx":
		return workspace.SourceCodeScript
	default:
		return workspace.SourceCodeRegular
	}
}
