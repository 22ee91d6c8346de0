//go:build !onnx

package main

import (
	"errors"

	"github.com/becomeliminal/nim-assistant/config"
	"github.com/becomeliminal/nim-assistant/memory"
)

func newONNXEmbedder(config.EmbeddingsConfig) (memory.Embedder, func() error, error) {
	return nil, nil, errors.New("onnx embeddings require building with -tags onnx")
}
