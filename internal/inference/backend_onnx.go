//go:build onnx

package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxBuilt indicates this binary was compiled with ONNX Runtime support.
var onnxBuilt = true

var ortInit struct {
	once sync.Once
	err  error
}

// ONNXOptions configures the in-process ONNX Runtime backend.
type ONNXOptions struct {
	ModelPath string
	// SharedLibrary is the path to libonnxruntime; empty uses the runtime's default lookup.
	SharedLibrary string
	Threads       int
}

type onnxBackend struct {
	session *ort.DynamicAdvancedSession
	width   int
	height  int
	classes int
	labels  []string
}

// OpenONNX returns an Opener for an image-classification model exported to ONNX.
// Labels come from the model's custom metadata key id2label when present.
func OpenONNX(opts ONNXOptions) Opener {
	return func(ctx context.Context) (Backend, error) {
		if strings.TrimSpace(opts.ModelPath) == "" {
			return nil, fmt.Errorf("onnx model path is empty")
		}
		ortInit.once.Do(func() {
			if opts.SharedLibrary != "" {
				ort.SetSharedLibraryPath(opts.SharedLibrary)
			}
			ortInit.err = ort.InitializeEnvironment()
		})
		if ortInit.err != nil {
			return nil, ErrDependencyUnavailable("onnxruntime init: " + ortInit.err.Error())
		}

		inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("onnx io info: %w", err)
		}
		if len(inputs) != 1 || len(outputs) < 1 {
			return nil, fmt.Errorf("onnx model must have one input and at least one output, got %d/%d", len(inputs), len(outputs))
		}
		in := inputs[0].Dimensions
		if len(in) != 4 || in[2] <= 0 || in[3] <= 0 {
			return nil, fmt.Errorf("onnx input %q must be NCHW with fixed H and W, got %v", inputs[0].Name, in)
		}
		out := outputs[0].Dimensions

		labels, err := readID2Label(opts.ModelPath)
		if err != nil {
			return nil, err
		}
		classes := 0
		if len(out) == 2 && out[1] > 0 {
			classes = int(out[1])
		} else if len(labels) > 0 {
			classes = len(labels)
		} else {
			classes = len(DefaultLabels)
		}

		so, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("onnx session options: %w", err)
		}
		defer so.Destroy()
		if err := applyThreads(so, opts.Threads); err != nil {
			return nil, err
		}
		sess, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
			[]string{inputs[0].Name}, []string{outputs[0].Name}, so)
		if err != nil {
			return nil, fmt.Errorf("onnx session: %w", err)
		}
		return &onnxBackend{
			session: sess,
			width:   int(in[3]),
			height:  int(in[2]),
			classes: classes,
			labels:  labels,
		}, nil
	}
}

// readID2Label parses Hugging Face style {"0":"angry",...} metadata.
func readID2Label(path string) ([]string, error) {
	md, err := ort.GetModelMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("onnx metadata: %w", err)
	}
	defer md.Destroy()
	raw, ok, err := md.LookupCustomMetadataMap("id2label")
	if err != nil || !ok || raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, nil
	}
	idx := make([]int, 0, len(m))
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			return nil, nil
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	labels := make([]string, len(idx))
	for pos, i := range idx {
		if i != pos {
			return nil, nil
		}
		labels[pos] = strings.ToLower(m[strconv.Itoa(i)])
	}
	return labels, nil
}

func (b *onnxBackend) InputSize() (int, int) { return b.width, b.height }

func (b *onnxBackend) Labels() []string { return b.labels }

func (b *onnxBackend) Forward(ctx context.Context, batch []float32, n int) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := ort.NewTensor(ort.NewShape(int64(n), 3, int64(b.height), int64(b.width)), batch)
	if err != nil {
		return nil, fmt.Errorf("onnx input tensor: %w", err)
	}
	defer input.Destroy()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(b.classes)))
	if err != nil {
		return nil, fmt.Errorf("onnx output tensor: %w", err)
	}
	defer output.Destroy()
	if err := b.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	data := output.GetData()
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = append([]float32(nil), data[i*b.classes:(i+1)*b.classes]...)
	}
	return rows, nil
}

func (b *onnxBackend) Close() error { return b.session.Destroy() }
