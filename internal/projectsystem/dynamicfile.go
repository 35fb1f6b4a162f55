package projectsystem

import (
	"context"
	"fmt"
	"slices"

	"github.com/steveyegge/projsync/internal/workspace"
)

// DynamicFileInfo is the generated document that stands in for a file the
// project system reported, for instance the C# generated from a Razor page.
type DynamicFileInfo struct {
	// FilePath is the path of the generated document.
	FilePath string
	Text     string
}

// DynamicFileInfoProvider turns project-system files into generated
// documents. Implementations must be comparable.
type DynamicFileInfoProvider interface {
	// GetDynamicFileInfo returns the generated document for filePath, or nil
	// if the provider does not handle the file.
	GetDynamicFileInfo(ctx context.Context, projectID workspace.ProjectID, projectFilePath, filePath string) (*DynamicFileInfo, error)

	// RemoveDynamicFileInfo tells the provider the file is no longer used.
	RemoveDynamicFileInfo(ctx context.Context, projectID workspace.ProjectID, projectFilePath, filePath string) error

	// Subscribe registers fn to be called whenever the generated document
	// for filePath in the project at projectFilePath changes.
	Subscribe(fn func(projectFilePath, filePath string)) (unsubscribe func())
}

type dynamicFile struct {
	provider   DynamicFileInfoProvider
	path       string
	documentID workspace.DocumentID
}

type dynamicFileUpdate struct {
	projectFilePath string
	filePath        string
}

// AddDynamicSourceFile asks the registered providers for a generated
// document standing in for path and adds it as a source document. A file no
// provider handles is ignored.
func (p *Project) AddDynamicSourceFile(ctx context.Context, path string, folders ...string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	key := normalizePath(path)

	var projectFilePath string
	err := p.withGate(ctx, func() error {
		if _, ok := p.dynamicFiles[key]; ok {
			return fmt.Errorf("%w: dynamic file %s", ErrAlreadyAdded, path)
		}
		projectFilePath = p.filePath
		return nil
	})
	if err != nil {
		return err
	}

	// Providers may be slow; they are never called with the gate held.
	var provider DynamicFileInfoProvider
	var info *DynamicFileInfo
	for _, candidate := range p.f.providers {
		got, err := candidate.GetDynamicFileInfo(ctx, p.id, projectFilePath, path)
		if err != nil {
			return fmt.Errorf("failed to get dynamic file info for %s: %w", path, err)
		}
		if got != nil {
			provider, info = candidate, got
			break
		}
	}
	if info == nil {
		return nil
	}

	err = p.withGate(ctx, func() error {
		if _, ok := p.dynamicFiles[key]; ok {
			return fmt.Errorf("%w: dynamic file %s", ErrAlreadyAdded, path)
		}
		id, err := p.sourceFiles.addFile(info.FilePath, folders, true, info.Text)
		if err != nil {
			return err
		}
		p.dynamicFiles[key] = &dynamicFile{provider: provider, path: path, documentID: id}
		p.subscribeLocked(provider)
		p.flushIfIdleLocked()
		return nil
	})
	if err != nil {
		// The provider handed out info nobody holds; give it back.
		if rerr := provider.RemoveDynamicFileInfo(context.WithoutCancel(ctx), p.id, projectFilePath, path); rerr != nil {
			p.f.logger.Printf("failed to release dynamic file info for %s: %v", path, rerr)
		}
		return err
	}
	return nil
}

// RemoveDynamicSourceFile removes the generated document standing in for path.
func (p *Project) RemoveDynamicSourceFile(ctx context.Context, path string) error {
	key := normalizePath(path)

	var removed *dynamicFile
	var projectFilePath string
	err := p.withGate(ctx, func() error {
		df, ok := p.dynamicFiles[key]
		if !ok {
			return fmt.Errorf("%w: dynamic file %s", ErrNotFound, path)
		}
		delete(p.dynamicFiles, key)
		p.sourceFiles.removeID(df.documentID)
		p.flushIfIdleLocked()
		removed, projectFilePath = df, p.filePath
		return nil
	})
	if err != nil {
		return err
	}

	if err := removed.provider.RemoveDynamicFileInfo(ctx, p.id, projectFilePath, removed.path); err != nil {
		return fmt.Errorf("failed to release dynamic file info for %s: %w", path, err)
	}
	return nil
}

// subscribeLocked listens to provider for updates, once per provider.
func (p *Project) subscribeLocked(provider DynamicFileInfoProvider) {
	if slices.Contains(p.subscribedProviders, provider) {
		return
	}
	p.subscribedProviders = append(p.subscribedProviders, provider)
	p.unsubscribes = append(p.unsubscribes, provider.Subscribe(func(projectFilePath, filePath string) {
		p.dynamicRefresh.Add(dynamicFileUpdate{projectFilePath: projectFilePath, filePath: normalizePath(filePath)})
	}))
}

// refreshDynamicFiles is the dynamic refresh queue's worker. It runs off the
// gate and takes it for each file, only while reading or writing project
// state.
func (p *Project) refreshDynamicFiles(ctx context.Context, updates []dynamicFileUpdate) {
	for _, u := range updates {
		if ctx.Err() != nil {
			return
		}

		var df *dynamicFile
		var projectFilePath string
		err := p.withGate(ctx, func() error {
			if pathsEqual(p.filePath, u.projectFilePath) {
				df, projectFilePath = p.dynamicFiles[u.filePath], p.filePath
			}
			return nil
		})
		if err != nil || df == nil {
			continue
		}

		info, err := df.provider.GetDynamicFileInfo(ctx, p.id, projectFilePath, df.path)
		if err != nil {
			p.f.logger.Printf("failed to refresh dynamic file %s: %v", df.path, err)
			continue
		}
		if info == nil {
			continue
		}

		_ = p.withGate(ctx, func() error {
			// The file may have been removed while the provider ran.
			if p.dynamicFiles[u.filePath] != df {
				return nil
			}
			p.sourceFiles.updateText(df.documentID, info.Text)
			p.flushIfIdleLocked()
			return nil
		})
	}
}
