//go:build onnx

package main

import (
	"github.com/becomeliminal/nim-assistant/config"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder/onnx"
)

func newONNXEmbedder(ec config.EmbeddingsConfig) (memory.Embedder, func() error, error) {
	e, err := onnx.New(onnx.Config{
		ModelPath:         ec.ModelPath,
		TokenizerPath:     ec.TokenizerPath,
		Dimensions:        ec.Dimensions,
		SharedLibraryPath: ec.LibraryPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}
