package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/splax/swapdeploy/pkg/remotelog"
)

// Serve runs h as an exec install hook over stdin/stdout. A hook binary's
// main typically looks like:
//
//	func main() {
//		if err := hook.Serve(context.Background(), &Installer{}); err != nil {
//			fmt.Fprintln(os.Stderr, err)
//			os.Exit(1)
//		}
//	}
func Serve(ctx context.Context, h Installer) error {
	return ServeIO(ctx, h, os.Stdin, os.Stdout)
}

// ServeIO is Serve with explicit streams.
func ServeIO(ctx context.Context, h Installer, in io.Reader, out io.Writer) error {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode hook request: %w", err)
	}
	if req.Args == nil {
		req.Args = map[string]string{}
	}

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	var writeErr error
	write := func(msg any) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil {
			return
		}
		writeErr = enc.Encode(msg)
	}

	logger := remotelog.New(remotelog.WithSink(func(e remotelog.Entry) {
		write(Message{Log: &LogLine{Level: e.Level, Message: e.Message, Context: e.Context}})
	}))
	result, err := Run(ctx, h, logger, req.Args, req.InstalledTo)
	if err != nil {
		return err
	}
	// Written without omitempty so an empty result is still a result line.
	write(struct {
		Result map[string]string `json:"result"`
	}{Result: result})
	if writeErr != nil {
		return fmt.Errorf("write hook output: %w", writeErr)
	}
	return nil
}
