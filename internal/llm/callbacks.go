package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/callbacks"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type startKey struct{}

// LogHandler logs graph node and model activity. When Out is set, model
// output text is also pushed there.
type LogHandler struct {
	Debug bool
	Out   chan<- string
}

func NewLogHandler(debug bool) *LogHandler {
	return &LogHandler{Debug: debug}
}

func (h *LogHandler) push(s string) {
	if h.Out == nil || s == "" {
		return
	}
	select {
	case h.Out <- s:
	default:
	}
}

func (h *LogHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if h.Debug && info != nil {
		log.Printf("[Graph] start %s (%s)", info.Name, info.Component)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (h *LogHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if out := ecmodel.ConvCallbackOutput(output); out != nil && out.Message != nil {
		h.push(out.Message.Content)
	}
	if h.Debug && info != nil {
		if start, ok := ctx.Value(startKey{}).(time.Time); ok {
			log.Printf("[Graph] end %s in %s", info.Name, time.Since(start).Round(time.Millisecond))
		}
	}
	return ctx
}

func (h *LogHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	log.Printf("[Graph] %s failed: %v", name, err)
	return ctx
}

func (h *LogHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h *LogHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Graph] stream callback panic: %v", r)
			}
		}()
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				log.Printf("[Graph] stream recv: %v", err)
				return
			}
			switch v := frame.(type) {
			case *schema.Message:
				h.push(v.Content)
			case *ecmodel.CallbackOutput:
				if v.Message != nil {
					h.push(v.Message.Content)
				}
			}
		}
	}()
	return ctx
}
