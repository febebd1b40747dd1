package convert

import (
	"context"
	"io"

	"sticker-press/internal/sticker"
	"sticker-press/internal/transcoder"
)

// Engine produces transcoding sessions. The production implementation wraps
// the FFmpeg engine; tests substitute fakes.
type Engine interface {
	Load(ctx context.Context) (Session, error)
}

// Session is one conversion's scratch space and process runner.
type Session interface {
	WriteInput(name string, r io.Reader) (int64, error)
	Probe(ctx context.Context, name string) (sticker.ClipInfo, error)
	Run(ctx context.Context, args []string, onProgress func(percent float64)) error
	ReadOutput(name string) ([]byte, error)
	DeleteFile(name string)
	Close()
}

type ffmpegEngine struct {
	engine *transcoder.Engine
}

// FFmpeg adapts the concrete transcoder engine to the Engine interface.
func FFmpeg(e *transcoder.Engine) Engine {
	return ffmpegEngine{engine: e}
}

func (f ffmpegEngine) Load(ctx context.Context) (Session, error) {
	s, err := f.engine.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
