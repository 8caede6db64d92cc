// Package kvstore writes single items into a DynamoDB table from an HTTP request.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/logging"
)

type PutClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ PutClient = (*dynamodb.Client)(nil)

type Item struct {
	ID    string `dynamodbav:"id" json:"id"`
	Value string `dynamodbav:"value" json:"value"`
}

var DefaultItem = Item{ID: "1", Value: "Value1"}

type Handler struct {
	client PutClient
	table  string
	logger *zap.Logger
}

func NewHandler(client PutClient, table string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{client: client, table: table, logger: logger}
}

// Put writes it unconditionally.
func (h *Handler) Put(ctx context.Context, it Item) error {
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return apperr.Data("marshal item", err)
	}
	_, err = h.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(h.table),
		Item:      av,
	})
	if err != nil {
		return apperr.Connectivity(fmt.Sprintf("dynamodb put %s", h.table), err)
	}
	return nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	log := logging.ForInvocation(ctx, h.logger)

	it, err := ItemFromBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		log.Warn("invalid request body", zap.Error(err))
		return respond(apperr.HTTPStatus(err), map[string]any{"error": err.Error()})
	}
	if err := h.Put(ctx, it); err != nil {
		log.Error("put item failed", zap.Error(err))
		return respond(apperr.HTTPStatus(err), map[string]any{"error": "put item failed"})
	}

	log.Info("item stored", zap.String("table", h.table), zap.String("id", it.ID))
	return respond(200, map[string]any{"message": "Data insertion succeeded!"})
}

// ItemFromBody returns DefaultItem for an empty body, else the decoded item.
func ItemFromBody(body string, base64Encoded bool) (Item, error) {
	if strings.TrimSpace(body) == "" {
		return DefaultItem, nil
	}
	if base64Encoded {
		return Item{}, apperr.Data("binary bodies are not accepted", nil)
	}
	var it Item
	if err := json.Unmarshal([]byte(body), &it); err != nil {
		return Item{}, apperr.Data("decode body", err)
	}
	if strings.TrimSpace(it.ID) == "" {
		return Item{}, apperr.Data("id is required", nil)
	}
	return it, nil
}

func respond(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(b),
	}, nil
}
