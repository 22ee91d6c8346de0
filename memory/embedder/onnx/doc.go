// Package onnx embeds text locally with an ONNX sentence-transformer
// model such as all-MiniLM-L6-v2. The runtime-backed Embedder needs
// -tags onnx; the WordPiece tokenizer and pooling build everywhere.
package onnx
