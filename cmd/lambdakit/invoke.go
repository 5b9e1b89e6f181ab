package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/lambdakit/internal/codec"
	"github.com/oriys/lambdakit/internal/domain"
	"github.com/oriys/lambdakit/internal/gateway"
	"github.com/oriys/lambdakit/internal/logging"
	"github.com/oriys/lambdakit/internal/observability"
	"github.com/oriys/lambdakit/internal/output"
	"github.com/oriys/lambdakit/internal/ratelimit"
)

type invokeOptions struct {
	payload       string
	payloadFile   string
	mode          string
	qualifier     string
	tail          bool
	clientContext string
	schemaFile    string
	timeout       time.Duration
	count         int
	concurrency   int
	rate          float64
	role          roleFlags
}

func invokeCmd() *cobra.Command {
	var opts invokeOptions

	cmd := &cobra.Command{
		Use:   "invoke <function>",
		Short: "Invoke a function",
		Long: `Invoke a function by name, ARN or partial ARN.

Modes: sync (RequestResponse, default), async (Event), dry-run (DryRun).
With --role-arn the call is signed with credentials from an STS role exchange.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.payload, "payload", "p", "", "JSON payload")
	cmd.Flags().StringVarP(&opts.payloadFile, "file", "f", "", "Read the JSON payload from a file (- for stdin)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Invocation mode: sync, async, dry-run")
	cmd.Flags().StringVarP(&opts.qualifier, "qualifier", "q", "", "Version or alias to invoke")
	cmd.Flags().BoolVar(&opts.tail, "tail", false, "Return the last 4 KB of the execution log (sync only)")
	cmd.Flags().StringVar(&opts.clientContext, "client-context", "", "Client context as a JSON object")
	cmd.Flags().StringVar(&opts.schemaFile, "schema", "", "Reject payloads that do not match this JSON schema file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Abandon the call after this long")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of invocations")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "Invocations in flight at once when --count > 1")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "Start at most this many invocations per second (0 = unlimited)")
	opts.role.register(cmd)

	return cmd
}

func runInvoke(ctx context.Context, function string, opts invokeOptions) error {
	mode, err := domain.ParseInvocationMode(opts.mode)
	if err != nil {
		return err
	}
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	payload, err := readPayload(opts.payload, opts.payloadFile, os.Stdin)
	if err != nil {
		return err
	}

	reqOpts := []domain.RequestOption{domain.WithMode(mode)}
	if opts.qualifier != "" {
		reqOpts = append(reqOpts, domain.WithQualifier(opts.qualifier))
	}
	if opts.tail {
		reqOpts = append(reqOpts, domain.WithTailLogs())
	}
	if opts.clientContext != "" {
		cc, err := codec.DecodeString[map[string]any](opts.clientContext)
		if err != nil {
			return fmt.Errorf("--client-context: %w", err)
		}
		reqOpts = append(reqOpts, domain.WithClientContext(cc))
	}
	req := domain.NewInvocationRequest(function, payload, reqOpts...)

	var gwOpts []gateway.Option
	if opts.schemaFile != "" {
		schema, err := loadSchema(opts.schemaFile)
		if err != nil {
			return err
		}
		gwOpts = append(gwOpts, gateway.WithPayloadSchema(function, schema))
	}
	g, err := buildGateway(ctx, app.cfg, opts.role, gwOpts...)
	if err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, "lambdakit.invoke",
		observability.AttrFunctionName.String(function),
		observability.AttrInvocationMode.String(string(mode)),
	)
	defer span.End()

	limiter := ratelimit.New(ratelimit.TierConfig{RequestsPerSecond: opts.rate, BurstSize: 1})
	results := make([]output.InvokeResult, opts.count)
	// Goroutines report failures through results, so the group only bounds
	// concurrency and Wait never returns an error.
	var eg errgroup.Group
	eg.SetLimit(max(opts.concurrency, 1))
	for i := range results {
		if err := limiter.Wait(ctx, function); err != nil {
			cerr := &domain.Error{Kind: domain.KindCancelled, Op: "invoke", Target: function, Message: "not started", Err: err}
			results[i] = output.NewInvokeResult("", function, mode, nil, cerr, 0)
			continue
		}
		eg.Go(func() error {
			results[i] = invokeOnce(ctx, g, req, opts.timeout)
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, r := range results {
		if err := app.printer.PrintInvokeResult(r); err != nil {
			return err
		}
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		observability.SetSpanError(span, fmt.Errorf("%d of %d invocations failed", failed, opts.count))
		if opts.count == 1 {
			return fmt.Errorf("invocation failed")
		}
		return fmt.Errorf("%d of %d invocations failed", failed, opts.count)
	}
	observability.SetSpanOK(span)
	return nil
}

func invokeOnce(ctx context.Context, g *gateway.Gateway, req domain.InvocationRequest[json.RawMessage], timeout time.Duration) output.InvokeResult {
	requestID := uuid.New().String()[:8]
	ctx = logging.WithRequestID(ctx, requestID)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := gateway.Invoke[json.RawMessage, any](ctx, g, req)
	return output.NewInvokeResult(requestID, req.FunctionName, req.Mode, resp, err, time.Since(start))
}
