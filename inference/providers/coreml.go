package providers

// CoreML execution provider flags, mirroring COREML_FLAG_* in the ONNX Runtime C API.
const (
	coreMLFlagUseCPUOnly          uint32 = 0x001
	coreMLFlagEnableOnSubgraph    uint32 = 0x002
	coreMLFlagOnlyEnableDeviceANE uint32 = 0x004
	coreMLFlagOnlyStaticShapes    uint32 = 0x008
	coreMLFlagCreateMLProgram     uint32 = 0x010
	coreMLFlagUseCPUAndGPU        uint32 = 0x020
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// ModelFormat is MLProgram (Core ML 5+) or NeuralNetwork.
	// Default: NeuralNetwork
	ModelFormat string `json:"modelFormat" yaml:"modelFormat"`
	// MLComputeUnits is CPUOnly, CPUAndNeuralEngine, CPUAndGPU or ALL.
	// Default: ALL
	MLComputeUnits string `json:"mlComputeUnits" yaml:"mlComputeUnits"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs" yaml:"enableOnSubgraphs"`
}

// Flags converts the options into the CoreML provider bit mask.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	switch o.MLComputeUnits {
	case "CPUOnly":
		flags |= coreMLFlagUseCPUOnly
	case "CPUAndNeuralEngine":
		flags |= coreMLFlagOnlyEnableDeviceANE
	case "CPUAndGPU":
		flags |= coreMLFlagUseCPUAndGPU
	}
	if o.ModelFormat == "MLProgram" {
		flags |= coreMLFlagCreateMLProgram
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLFlagOnlyStaticShapes
	}
	if o.EnableOnSubgraphs {
		flags |= coreMLFlagEnableOnSubgraph
	}
	return flags
}
