package core

import (
	"context"
	"io"
	"sync"

	"github.com/recallkit/recallkit-go/pkg/vectorstore"
)

// AsyncPipeline provides asynchronous pipeline operations.
//
// It wraps the synchronous Pipeline and executes each invocation in its own
// goroutine, which suits a voice frontend that keeps recording while earlier
// utterances are still in flight.
//
// All async methods return channels that receive the result when the flow
// completes. The wrapper tracks its goroutines and provides Wait() to
// ensure all in-flight flows finish.
//
// Example:
//
//	ap, _ := core.NewAsyncPipeline(nil)
//	defer ap.Close()
//
//	resultChan := ap.HandleTextAsync(ctx, "remind me to call mom tomorrow at 9", "en")
//	res := <-resultChan
//	if res.Error != nil {
//	    log.Fatal(res.Error)
//	}
type AsyncPipeline struct {
	*Pipeline
	wg sync.WaitGroup
}

// AsyncResult carries one finished flow's result and error.
type AsyncResult struct {
	Result *Result
	Error  error
}

// AsyncRefreshResult carries a finished refresh's records and error.
type AsyncRefreshResult struct {
	Records []vectorstore.Record
	Error   error
}

// NewAsyncPipeline creates an asynchronous pipeline from configuration.
// Pass nil to load configuration from the environment.
func NewAsyncPipeline(cfg *Config) (*AsyncPipeline, error) {
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}

	return &AsyncPipeline{
		Pipeline: pipeline,
	}, nil
}

// NewAsyncPipelineWithComponents wraps a pipeline assembled from pre-built
// collaborators.
func NewAsyncPipelineWithComponents(c Components) (*AsyncPipeline, error) {
	pipeline, err := NewPipelineWithComponents(c)
	if err != nil {
		return nil, err
	}

	return &AsyncPipeline{
		Pipeline: pipeline,
	}, nil
}

// HandleTextAsync classifies and routes a transcript asynchronously.
func (ap *AsyncPipeline) HandleTextAsync(ctx context.Context, transcript, language string) <-chan *AsyncResult {
	resultChan := make(chan *AsyncResult, 1)
	ap.wg.Add(1)

	go func() {
		defer ap.wg.Done()
		result, err := ap.HandleText(ctx, transcript, language)
		resultChan <- &AsyncResult{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// HandleAudioAsync transcribes and routes a recording asynchronously.
func (ap *AsyncPipeline) HandleAudioAsync(ctx context.Context, audio io.Reader, filename, language string) <-chan *AsyncResult {
	resultChan := make(chan *AsyncResult, 1)
	ap.wg.Add(1)

	go func() {
		defer ap.wg.Done()
		result, err := ap.HandleAudio(ctx, audio, filename, language)
		resultChan <- &AsyncResult{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// RefreshMemoriesAsync reloads every stored memory asynchronously.
func (ap *AsyncPipeline) RefreshMemoriesAsync(ctx context.Context) <-chan *AsyncRefreshResult {
	resultChan := make(chan *AsyncRefreshResult, 1)
	ap.wg.Add(1)

	go func() {
		defer ap.wg.Done()
		records, err := ap.RefreshMemories(ctx)
		resultChan <- &AsyncRefreshResult{
			Records: records,
			Error:   err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all in-flight flows complete.
func (ap *AsyncPipeline) Wait() {
	ap.wg.Wait()
}

// Close waits for in-flight flows and releases pipeline resources.
func (ap *AsyncPipeline) Close() error {
	ap.wg.Wait()
	return ap.Pipeline.Close()
}
