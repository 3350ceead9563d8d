package frontend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/refc/internal/ast"
)

// LoadMode controls how errors are handled while loading a directory.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult holds the modules found in a directory.
type LoadResult struct {
	Modules   []*ast.Module
	Files     map[string]string // module name -> file
	FileCount int
}

// Module returns the loaded module called name, or nil.
func (r *LoadResult) Module(name string) *ast.Module {
	for _, m := range r.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// LoadFile loads a single module file through the CUE loader, so package
// clauses and imports of the CUE module it lives in are honoured.
func LoadFile(path string) (*ast.Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("module file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing module file: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s is a directory", path)}
	}

	cfg := &load.Config{Dir: filepath.Dir(abs)}
	instances := load.Instances([]string{filepath.Base(abs)}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading %s: %v", path, inst.Err)}
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, convertCompileError(formatCUEError(err), path)
	}
	m, err := CompileModule(value)
	if err != nil {
		return nil, convertCompileError(err, path)
	}
	return m, nil
}

// LoadDir loads every *.cue file under dir as its own module.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("modules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing modules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	res := &LoadResult{Files: map[string]string{}, FileCount: len(files)}
	var errs []error
	for _, file := range files {
		m, err := LoadFile(file)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return res, errs
			}
			continue
		}
		if prev, dup := res.Files[m.Name]; dup {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("module %s defined in both %s and %s", m.Name, prev, file)})
			if mode == LoadModeFailFast {
				return res, errs
			}
			continue
		}
		res.Files[m.Name] = file
		res.Modules = append(res.Modules, m)
	}
	return res, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths in
// lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != dir && info.Name() == "cue.mod" {
			return filepath.SkipDir
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compile error to a LoadError with position info.
func convertCompileError(err error, context string) error {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
