package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// RegisterHostFunctions instantiates the host module in r. The module is
// stateless: every call resolves its Environment from the call context, so
// one instance serves all concurrent runs of the runtime.
func RegisterHostFunctions(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	for _, f := range functions {
		fb := builder.NewFunctionBuilder().WithGoModuleFunction(f.goFunc(), f.Params, f.Results)
		if len(f.ParamNames) > 0 {
			fb = fb.WithParameterNames(f.ParamNames...)
		}
		fb.Export(f.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s module: %w", ModuleName, err)
	}
	return mod, nil
}
