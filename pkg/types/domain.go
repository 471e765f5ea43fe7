package types

// Model represents an emotion classifier model discovered on disk.
type Model struct {
	// Stable identifier for the model (file name including extension).
	// example: emotion-vit.onnx
	ID string `json:"id" example:"emotion-vit.onnx"`
	// Human-friendly name.
	// example: emotion-vit
	Name string `json:"name" example:"emotion-vit"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/emotion/emotion-vit.onnx
	Path string `json:"path" example:"/home/user/models/emotion/emotion-vit.onnx"`
	// Model format, derived from the extension.
	// example: onnx
	Format string `json:"format" example:"onnx"`
	// Size of the model file in bytes.
	// example: 343000000
	SizeBytes int64 `json:"size_bytes" example:"343000000"`
}

// Cascade represents a Haar cascade definition discovered on disk.
type Cascade struct {
	// example: haarcascade_frontalface_default.xml
	ID string `json:"id" example:"haarcascade_frontalface_default.xml"`
	// example: /home/user/models/emotion/haarcascade_frontalface_default.xml
	Path string `json:"path" example:"/home/user/models/emotion/haarcascade_frontalface_default.xml"`
}
