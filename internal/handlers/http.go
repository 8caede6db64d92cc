package handlers

import (
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"

	"workshop-functions/internal/apperr"
)

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"error": msg,
	})
}

// ErrorResponse renders err with the status its kind maps to.
func ErrorResponse(err error) (events.APIGatewayV2HTTPResponse, error) {
	return errResp(apperr.HTTPStatus(err), err.Error())
}
