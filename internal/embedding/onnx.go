//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// onnxBindings are the tensors bound to a session. Embed rewrites their data in place.
type onnxBindings struct {
	inputs [3]*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

func newONNXBindings(maxTokens, dims int) (*onnxBindings, error) {
	b := &onnxBindings{}
	shape := ort.NewShape(1, int64(maxTokens))
	for i, name := range onnxInputNames {
		t, err := ort.NewTensor(shape, make([]int64, maxTokens))
		if err != nil {
			b.destroy()
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		b.inputs[i] = t
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dims)))
	if err != nil {
		b.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	b.output = out
	return b, nil
}

func (b *onnxBindings) load(enc Encoding) {
	copy(b.inputs[0].GetData(), enc.InputIDs)
	copy(b.inputs[1].GetData(), enc.AttentionMask)
	copy(b.inputs[2].GetData(), enc.TokenTypeIDs)
}

func (b *onnxBindings) inputTensors() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{b.inputs[0], b.inputs[1], b.inputs[2]}
}

func (b *onnxBindings) destroy() {
	for _, t := range b.inputs {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if b.output != nil {
		_ = b.output.Destroy()
	}
}

// ONNXEmbedder runs a sentence-embedding model through ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	io         *onnxBindings
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// NewONNXEmbedder loads the model described by opts. The ONNX environment is initialized on first use.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	opts.applyDefaults()
	if err := initONNXRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}

	io, err := newONNXBindings(opts.MaxTokens, opts.Dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		onnxInputNames,
		[]string{opts.OutputName},
		io.inputTensors(),
		[]ort.ArbitraryTensor{io.output},
		nil,
	)
	if err != nil {
		io.destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", opts.ModelPath, err)
	}

	return &ONNXEmbedder{
		session:    session,
		io:         io,
		tokenizer:  WordHashTokenizer{},
		dimensions: opts.Dimensions,
		maxTokens:  opts.MaxTokens,
	}, nil
}

func initONNXRuntime(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// Embed runs inference for text and returns a unit-length vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrModelUnavailable
	}

	e.io.load(e.tokenizer.Encode(text, e.maxTokens))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	vec := append([]float32(nil), e.io.output.GetData()[:e.dimensions]...)
	NormalizeL2Slice(vec)
	return vec, nil
}

// EmbedBatch embeds texts one at a time; the session is bound to a batch size of one.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close destroys the session and its tensors. It is safe to call more than once.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.io.destroy()
	e.session, e.io = nil, nil
	return err
}
