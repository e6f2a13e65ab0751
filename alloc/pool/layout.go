package pool

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// FreeChunk describes one free region of a pool's backing buffer, in bytes from the start of
// the buffer. Size includes the region's header.
type FreeChunk struct {
	Begin int
	Size  int
	// OpenEnded is true for the free region that runs to the end of the buffer
	OpenEnded bool
}

func writeLayout(writer *jwriter.Writer, typeName string, totalSize int, layout []FreeChunk) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("type").String(typeName)
	obj.Name("total_size").Int(totalSize)

	chunks := obj.Name("free_chunk_layout").Array()
	defer chunks.End()

	for _, chunk := range layout {
		chunkObj := chunks.Object()
		chunkObj.Name("begin").Int(chunk.Begin)
		chunkObj.Name("size").Int(chunk.Size)
		chunkObj.End()
	}
}

func layoutString(typeName string, totalSize int, layout []FreeChunk) string {
	writer := jwriter.NewWriter()
	writeLayout(&writer, typeName, totalSize, layout)
	return string(writer.Bytes())
}

// validateFunc lets a pool hand its unlocked validation method to memutils.DebugValidate while
// it already holds its own mutex
type validateFunc func() error

func (f validateFunc) Validate() error {
	return f()
}
