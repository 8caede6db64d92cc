package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"workshop-functions/internal/handlers"
)

func main() {
	lambda.Start(handlers.Hello)
}
