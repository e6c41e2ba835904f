package host

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/owasm-vm/owasmvm/types"
)

// ModuleName is the import module of every host function.
const ModuleName = "env"

// Host function names.
const (
	GetCalldata           = "get_calldata"
	SetReturnData         = "set_return_data"
	AskExternalData       = "ask_external_data"
	GetExternalDataStatus = "get_external_data_status"
	GetExternalData       = "get_external_data"
	GetAskCount           = "get_ask_count"
	GetMinCount           = "get_min_count"
	GetSpanSize           = "get_span_size"
	GetPrepareTime        = "get_prepare_time"
	GetExecuteTime        = "get_execute_time"
	GetAnsCount           = "get_ans_count"
)

const i64 = api.ValueTypeI64

// Function describes one entry of the host interface.
type Function struct {
	Name       string
	Params     []api.ValueType
	Results    []api.ValueType
	ParamNames []string
	call       func(env *Environment, mem api.Memory, stack []uint64)
}

var functions = []Function{
	{
		Name:       GetCalldata,
		Params:     []api.ValueType{i64},
		Results:    []api.ValueType{i64},
		ParamNames: []string{"dst_ptr"},
		call:       getCalldata,
	},
	{
		Name:       SetReturnData,
		Params:     []api.ValueType{i64, i64},
		ParamNames: []string{"ptr", "len"},
		call:       setReturnData,
	},
	{
		Name:       AskExternalData,
		Params:     []api.ValueType{i64, i64, i64},
		Results:    []api.ValueType{i64},
		ParamNames: []string{"source_id", "ptr", "len"},
		call:       askExternalData,
	},
	{
		Name:       GetExternalDataStatus,
		Params:     []api.ValueType{i64},
		Results:    []api.ValueType{i64},
		ParamNames: []string{"external_id"},
		call:       getExternalDataStatus,
	},
	{
		Name:       GetExternalData,
		Params:     []api.ValueType{i64, i64},
		Results:    []api.ValueType{i64},
		ParamNames: []string{"external_id", "dst_ptr"},
		call:       getExternalData,
	},
	metadata(GetAskCount, func(e *Environment) int64 { return e.params.AskCount }, types.PhasePrepare, types.PhaseExecute),
	metadata(GetMinCount, func(e *Environment) int64 { return e.params.MinCount }, types.PhasePrepare, types.PhaseExecute),
	metadata(GetSpanSize, func(e *Environment) int64 { return int64(e.config.MaxSpanSize) }, types.PhasePrepare, types.PhaseExecute),
	metadata(GetPrepareTime, func(e *Environment) int64 { return e.params.PrepareTime }, types.PhasePrepare, types.PhaseExecute),
	metadata(GetExecuteTime, func(e *Environment) int64 { return e.params.ExecuteTime }, types.PhaseExecute),
	metadata(GetAnsCount, (*Environment).answered, types.PhaseExecute),
}

func init() {
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })
}

// Functions returns the host interface sorted by name.
func Functions() []Function {
	return append([]Function(nil), functions...)
}

// Lookup returns the host function with the given name.
func Lookup(name string) (Function, bool) {
	i := sort.Search(len(functions), func(i int) bool { return functions[i].Name >= name })
	if i < len(functions) && functions[i].Name == name {
		return functions[i], true
	}
	return Function{}, false
}

func (f Function) goFunc() api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		f.call(mustEnvironment(ctx), mod.Memory(), stack)
	}
}

func getCalldata(env *Environment, mem api.Memory, stack []uint64) {
	dst := int64(stack[0])
	calldata := env.params.Calldata
	env.requirePhase(GetCalldata, types.PhasePrepare, types.PhaseExecute)
	env.requireSpan(GetCalldata, int64(len(calldata)))
	env.charge(env.config.GasCosts.HostCalls.GetCalldata.TotalCost(uint64(len(calldata))), GetCalldata)
	if err := writeMemory(mem, dst, calldata); err != nil {
		env.fail(err)
	}
	stack[0] = api.EncodeI64(int64(len(calldata)))
}

func setReturnData(env *Environment, mem api.Memory, stack []uint64) {
	ptr, length := int64(stack[0]), int64(stack[1])
	env.requirePhase(SetReturnData, types.PhaseExecute)
	if env.outputSet {
		env.fail(types.NewProtocolViolation("%s: return data already set", SetReturnData))
	}
	env.requireSpan(SetReturnData, length)
	env.charge(env.config.GasCosts.HostCalls.SetReturnData.TotalCost(uint64(max(length, 0))), SetReturnData)
	data, err := readMemory(mem, ptr, length)
	if err != nil {
		env.fail(err)
	}
	env.output = data
	env.outputSet = true
}

func askExternalData(env *Environment, mem api.Memory, stack []uint64) {
	sourceID, ptr, length := int64(stack[0]), int64(stack[1]), int64(stack[2])
	env.requirePhase(AskExternalData, types.PhasePrepare)
	if uint64(len(env.requests)) >= uint64(env.config.MaxRequestCount) {
		env.fail(types.NewProtocolViolation("%s: request limit %d reached", AskExternalData, env.config.MaxRequestCount))
	}
	env.requireSpan(AskExternalData, length)
	env.charge(env.config.GasCosts.HostCalls.AskExternalData.TotalCost(uint64(max(length, 0))), AskExternalData)
	calldata, err := readMemory(mem, ptr, length)
	if err != nil {
		env.fail(err)
	}
	id := int64(len(env.requests))
	env.requests = append(env.requests, types.Request{ID: id, SourceID: sourceID, Calldata: calldata})
	stack[0] = api.EncodeI64(id)
}

func getExternalDataStatus(env *Environment, _ api.Memory, stack []uint64) {
	id := int64(stack[0])
	env.requirePhase(GetExternalDataStatus, types.PhaseExecute)
	res := env.resolution(GetExternalDataStatus, id)
	env.charge(env.config.GasCosts.HostCalls.GetExternalDataStatus.TotalCost(0), GetExternalDataStatus)
	stack[0] = api.EncodeI64(int64(res.Status))
}

func getExternalData(env *Environment, mem api.Memory, stack []uint64) {
	id, dst := int64(stack[0]), int64(stack[1])
	env.requirePhase(GetExternalData, types.PhaseExecute)
	res := env.resolution(GetExternalData, id)
	env.charge(env.config.GasCosts.HostCalls.GetExternalData.TotalCost(uint64(len(res.Payload))), GetExternalData)
	if err := writeMemory(mem, dst, res.Payload); err != nil {
		env.fail(err.WithRequest(id))
	}
	stack[0] = api.EncodeI64(int64(len(res.Payload)))
}

func metadata(name string, value func(*Environment) int64, phases ...types.Phase) Function {
	return Function{
		Name:    name,
		Results: []api.ValueType{i64},
		call: func(env *Environment, _ api.Memory, stack []uint64) {
			env.requirePhase(name, phases...)
			env.charge(env.config.GasCosts.HostCalls.Metadata.TotalCost(0), name)
			stack[0] = api.EncodeI64(value(env))
		},
	}
}
