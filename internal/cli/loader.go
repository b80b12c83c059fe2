package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/streamsql/internal/pipeline"
)

// Error code constants shared by all commands.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeNotFound    = "E002" // path not found
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E005" // CUE build failed
	ErrCodeCompile     = "E006" // pipeline compilation failed
	ErrCodeValidation  = "E007" // pipeline validation failed
	ErrCodeExecution   = "E008" // pipeline execution failed
)

// LoadPipeline loads a pipeline definition from a CUE file or a
// directory of CUE files. The definition must sit under the top-level
// "pipeline" field.
func LoadPipeline(path string) (*pipeline.Pipeline, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("%s: path not found: %s", ErrCodeNotFound, path)}
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeNotFound+": accessing path", err)
	}

	var cfg *load.Config
	var args []string
	if info.IsDir() {
		files, err := findCUEFiles(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, ErrCodeGeneric+": scanning directory", err)
		}
		if len(files) == 0 {
			return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("%s: no CUE files found in %s", ErrCodeNoFiles, path)}
		}
		cfg = &load.Config{Dir: path}
		args = []string{"."}
	} else {
		cfg = &load.Config{Dir: filepath.Dir(path)}
		args = []string{path}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, &ExitError{Code: ExitCommandError, Message: ErrCodeLoadFailed + ": no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeLoadFailed+": loading CUE files", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeBuildFailed+": building CUE value", err)
	}

	pipelineVal := value.LookupPath(cue.ParsePath("pipeline"))
	if !pipelineVal.Exists() {
		return nil, &ExitError{Code: ExitCommandError, Message: ErrCodeCompile + ": no top-level \"pipeline\" field"}
	}

	p, err := pipeline.Compile(pipelineVal)
	if err != nil {
		return nil, WrapExitError(ExitFailure, ErrCodeCompile+": compiling pipeline", err)
	}
	return p, nil
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
