package embedding

// ONNXOptions configures an ONNX sentence-embedding model.
type ONNXOptions struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library; empty uses the platform default.
	LibraryPath string
	Dimensions  int
	MaxTokens   int
	// OutputName is the pooled output tensor name.
	OutputName string
}

func (o *ONNXOptions) applyDefaults() {
	if o.Dimensions <= 0 {
		o.Dimensions = 384
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 256
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
}
