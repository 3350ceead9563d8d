package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/compiler"
	"github.com/roach88/refc/internal/extmod"
	"github.com/roach88/refc/internal/frontend"
	"github.com/roach88/refc/internal/ir"
)

// loadedModule is one module file with its compilation.
type loadedModule struct {
	Path   string
	Source *ast.Module
	Result *compiler.Result
	// Hash fingerprints the file contents together with the compile
	// options and the capsules it was linked against.
	Hash string
}

// expandPaths replaces every directory argument by the CUE files in it.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, &frontend.LoadError{Code: frontend.ErrCodeNotFound, Message: fmt.Sprintf("not found: %s", arg)}
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		files, err := frontend.FindCUEFiles(arg)
		if err != nil {
			return nil, &frontend.LoadError{Code: frontend.ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &frontend.LoadError{Code: frontend.ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", arg)}
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

// loadModules reads every module, collecting all frontend errors, then
// compiles them in order. Each module imports the capsules of the modules
// before it, so calls into them are bound natively.
func loadModules(args []string, opts ...compiler.Option) ([]*loadedModule, []error) {
	paths, err := expandPaths(args)
	if err != nil {
		return nil, []error{err}
	}

	var errs []error
	mods := make([]*loadedModule, 0, len(paths))
	seen := map[string]string{}
	for _, p := range paths {
		src, err := frontend.LoadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[src.Name]; dup {
			errs = append(errs, &frontend.LoadError{
				Code:    frontend.ErrCodeGeneric,
				Message: fmt.Sprintf("module %s defined in both %s and %s", src.Name, prev, p),
			})
			continue
		}
		seen[src.Name] = p
		mods = append(mods, &loadedModule{Path: p, Source: src})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	base := compiler.NewOptions(opts...)
	var caps []*extmod.Capsule
	for _, m := range mods {
		o := base
		o.Imports = append(append([]*extmod.Capsule(nil), base.Imports...), caps...)
		res, err := compiler.Compile(m.Source, o)
		if err != nil {
			return nil, []error{fmt.Errorf("compile %s: %w", m.Path, err)}
		}
		m.Result = res
		if m.Hash, err = sourceHash(m.Path, o); err != nil {
			return nil, []error{err}
		}
		caps = append(caps, res.Module.Capsule)
	}
	return mods, nil
}

func sourceHash(path string, o compiler.Options) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &frontend.LoadError{Code: frontend.ErrCodeNotFound, Message: err.Error()}
	}
	parts := []string{"c=" + strconv.FormatBool(o.EmitC), "module=" + o.ModuleName}
	for _, c := range o.Imports {
		parts = append(parts, "import="+c.Module+"@"+c.Fingerprint)
	}
	return ir.SourceFingerprint(data, strings.Join(parts, ";")), nil
}

// errorCode returns the diagnostic code and message for a load or compile
// error.
func errorCode(err error) (string, string) {
	var compileErr *frontend.CompileError
	if errors.As(err, &compileErr) {
		return frontend.MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	var loadErr *frontend.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var internal *compiler.InternalError
	if errors.As(err, &internal) {
		return "ICE", internal.Error()
	}
	return frontend.ErrCodeGeneric, err.Error()
}

// errorPos returns the source position of err, if it has one.
func errorPos(err error) string {
	var compileErr *frontend.CompileError
	if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d", compileErr.Pos.Filename(), compileErr.Pos.Line(), compileErr.Pos.Column())
	}
	var loadErr *frontend.LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	return ""
}

// outputLoadErrors reports load and compile errors. They are command
// errors (exit code 2).
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := errorCode(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
			if pos := errorPos(err); pos != "" {
				cliErrors[i].Details = map[string]string{"pos": pos}
			}
		}
		if err := formatter.encode(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := errorCode(err)
		if pos := errorPos(err); pos != "" {
			fmt.Fprintln(formatter.Writer, pos)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// findModule returns the loaded module called name.
func findModule(mods []*loadedModule, name string) (*loadedModule, bool) {
	for _, m := range mods {
		if m.Source.Name == name {
			return m, true
		}
	}
	return nil, false
}
