package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"workshop-functions/internal/handlers"
)

func main() {
	h, err := handlers.NewTimestamp()
	if err != nil {
		log.Fatalf("init timestamp handler: %v", err)
	}
	lambda.Start(h.Handle)
}
