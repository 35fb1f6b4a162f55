package projectsystem

import (
	"context"
	"fmt"
	"maps"

	"github.com/steveyegge/projsync/internal/workspace"
)

// changeProperty runs set under the gate and queues change, flushing
// immediately outside of a batch.
func (p *Project) changeProperty(set func(), change propertyChange) error {
	return p.withGate(context.Background(), func() error {
		set()
		p.propertyChanges = append(p.propertyChanges, change)
		p.flushIfIdleLocked()
		return nil
	})
}

// simpleChange builds a property change that only touches the solution.
func simpleChange(id workspace.ProjectID, update func(s *workspace.Solution) *workspace.Solution) propertyChange {
	return func(acc *workspace.ChangeAccumulator, state ProjectUpdateState, _ bool) ProjectUpdateState {
		acc.ApplyProjectChange(id, update(acc.Solution()))
		return state
	}
}

// SetDisplayName renames the project in the workspace.
func (p *Project) SetDisplayName(name string) error {
	return p.changeProperty(func() { p.displayName = name }, simpleChange(p.id, func(s *workspace.Solution) *workspace.Solution {
		return s.WithProjectName(p.id, name)
	}))
}

// SetAssemblyName changes the project's assembly name.
func (p *Project) SetAssemblyName(name string) error {
	return p.changeProperty(func() { p.assemblyName = name }, simpleChange(p.id, func(s *workspace.Solution) *workspace.Solution {
		return s.WithProjectAssemblyName(p.id, name)
	}))
}

// SetFilePath changes the path of the project file.
func (p *Project) SetFilePath(path string) error {
	if path != "" {
		if err := validatePath(path); err != nil {
			return err
		}
	}
	return p.changeProperty(func() { p.filePath = path }, simpleChange(p.id, func(s *workspace.Solution) *workspace.Solution {
		return s.WithProjectFilePath(p.id, path)
	}))
}

// SetOutputFilePath changes the path the project compiles to, converting
// references to the old and new paths as needed. An empty path clears it.
func (p *Project) SetOutputFilePath(path string) error {
	return p.setOutputPath(path, func() { p.outputFilePath = path },
		(*workspace.ProjectState).OutputFilePath,
		(*workspace.Solution).WithProjectOutputFilePath)
}

// SetOutputRefFilePath changes the path of the project's reference assembly.
// An empty path clears it.
func (p *Project) SetOutputRefFilePath(path string) error {
	return p.setOutputPath(path, func() { p.outputRefFilePath = path },
		(*workspace.ProjectState).OutputRefFilePath,
		(*workspace.Solution).WithProjectOutputRefFilePath)
}

func (p *Project) setOutputPath(
	path string,
	set func(),
	current func(*workspace.ProjectState) string,
	with func(*workspace.Solution, workspace.ProjectID, string) *workspace.Solution,
) error {
	if path != "" {
		if err := validatePath(path); err != nil {
			return err
		}
	}
	id := p.id
	return p.changeProperty(set, func(acc *workspace.ChangeAccumulator, state ProjectUpdateState, closing bool) ProjectUpdateState {
		project, ok := acc.Solution().Project(id)
		if !ok {
			return state
		}
		// The old value is whatever this attempt's solution holds.
		old := current(project)
		if old == path {
			return state
		}
		acc.ApplyProjectChange(id, with(acc.Solution(), id, path))
		if old != "" {
			state = removeOutputPath(acc, state, id, old, closing)
		}
		if path != "" {
			state = addOutputPath(acc, state, id, path)
		}
		return state
	})
}

// SetCompilationOptions sets the options the project system reported. The
// host may adjust them before they reach the workspace.
func (p *Project) SetCompilationOptions(options workspace.CompilationOptions) error {
	return p.withGate(context.Background(), func() error {
		p.compilationOptions = options
		p.queueOptionsLocked()
		return nil
	})
}

// SetParseOptions sets the parse options the project system reported. The
// host may adjust them before they reach the workspace.
func (p *Project) SetParseOptions(options workspace.ParseOptions) error {
	return p.withGate(context.Background(), func() error {
		p.parseOptions = options
		p.queueOptionsLocked()
		return nil
	})
}

// SetBuildProperty records a raw build property and reapplies the host's
// option adjustments. An empty value deletes the property.
func (p *Project) SetBuildProperty(name, value string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidProperty)
	}
	return p.withGate(context.Background(), func() error {
		props := maps.Clone(p.buildProperties)
		if props == nil {
			props = make(map[string]string)
		}
		if value == "" {
			delete(props, name)
		} else {
			props[name] = value
		}
		p.buildProperties = props
		p.queueOptionsLocked()
		return nil
	})
}

// queueOptionsLocked queues the host-adjusted options computed from the
// current raw values. The results are captured now so the change stays pure.
func (p *Project) queueOptionsLocked() {
	id := p.id
	hp := p.hostProjectLocked()
	compilation := p.f.host.CompilationOptions(hp, p.compilationOptions)
	parse := p.f.host.ParseOptions(hp, p.parseOptions)

	p.propertyChanges = append(p.propertyChanges, simpleChange(id, func(s *workspace.Solution) *workspace.Solution {
		return s.WithProjectCompilationOptions(id, compilation).WithProjectParseOptions(id, parse)
	}))
	p.flushIfIdleLocked()
}
