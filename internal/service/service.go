package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"promptshelf/internal/aggregate"
	"promptshelf/internal/components/assert"
	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/scrapers/prompts"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("internal/service")

const (
	ServiceName            = "promptshelf.v1.PromptService"
	StreamAnswersProcedure = "/" + ServiceName + "/StreamAnswers"

	report_service_stream_answers = "service.stream-answers"
	report_service_save           = "service.save"
)

// Aggregator is implemented by aggregate.Orchestrator.
type Aggregator interface {
	RunFunc(ctx context.Context, id prompts.Identity, sink func(aggregate.Update)) aggregate.Result
}

// Saver is implemented by store.Store.
type Saver interface {
	Save(ctx context.Context, owner string, res aggregate.Result) error
}

type Service struct {
	aggregator Aggregator
	saver      Saver
	tel        telemetry.API
}

// NewService creates the streaming service, saver may be nil in which case
// requests asking to save are rejected.
func NewService(aggregator Aggregator, saver Saver, tel telemetry.API) Service {
	assert.NotNil("aggregator", aggregator)
	assert.NotNil("tel", tel)
	return Service{
		aggregator: aggregator,
		saver:      saver,
		tel:        telemetry.NewScopedAPI("service", tel),
	}
}

// StreamAnswers streams every update of a single aggregation followed by a
// KindDone message. A failed list fetch is not an rpc error, it is reported on
// the done message.
func (s Service) StreamAnswers(
	ctx context.Context,
	req *connect.Request[StreamAnswersRequest],
	stream *connect.ServerStream[StreamAnswersResponse],
) error {
	ctx, span := tracer.Start(ctx, "service:StreamAnswers")
	defer span.End()

	id := req.Msg.Identity()
	span.SetAttributes(attribute.String("custom.identity", id.String()))
	if id.IsZero() {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("account_id or username is required"))
	}
	if req.Msg.Save && s.saver == nil {
		return connect.NewError(connect.CodeFailedPrecondition, errors.New("no database is configured"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sendErr error
	res := s.aggregator.RunFunc(ctx, id, func(update aggregate.Update) {
		if sendErr != nil {
			return
		}
		sendErr = stream.Send(toResponse(update))
		if sendErr != nil {
			// the caller went away, stop the remaining enrichments
			cancel()
		}
	})
	if sendErr != nil {
		s.tel.ReportWarning(report_service_stream_answers, sendErr, id.String())
		return sendErr
	}

	done := &StreamAnswersResponse{
		Kind:      KindDone,
		Total:     len(res.Answers),
		ErrorKind: ErrorKind(res.Err),
	}
	if res.Err != nil {
		done.Error = res.Err.Error()
	}
	if req.Msg.Save && res.Err == nil {
		err := s.saver.Save(ctx, id.String(), res)
		if err != nil {
			s.tel.ReportBroken(report_service_save, err, id.String())
			done.SaveError = err.Error()
		} else {
			done.Saved = true
		}
	}
	return stream.Send(done)
}

// NewHandler returns the path and handler to mount on a mux.
func NewHandler(s Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	return StreamAnswersProcedure, connect.NewServerStreamHandler(
		StreamAnswersProcedure,
		s.StreamAnswers,
		opts...,
	)
}

type Client struct {
	streamAnswers *connect.Client[StreamAnswersRequest, StreamAnswersResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) Client {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return Client{
		streamAnswers: connect.NewClient[StreamAnswersRequest, StreamAnswersResponse](
			httpClient,
			strings.TrimSuffix(baseURL, "/")+StreamAnswersProcedure,
			opts...,
		),
	}
}

// StreamAnswers calls fn for every message before the done message and returns
// the done message.
func (c Client) StreamAnswers(
	ctx context.Context,
	req StreamAnswersRequest,
	fn func(*StreamAnswersResponse),
) (*StreamAnswersResponse, error) {
	stream, err := c.streamAnswers.CallServerStream(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for stream.Receive() {
		msg := stream.Msg()
		if msg.Kind == KindDone {
			return msg, nil
		}
		fn(msg)
	}
	err = stream.Err()
	if err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended without a done message")
}
