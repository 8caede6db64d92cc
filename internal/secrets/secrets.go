package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/config"
)

// secretsManagerPrefix lets Parameter Store resolve a Secrets Manager secret by id or ARN.
const secretsManagerPrefix = "/aws/reference/secretsmanager/"

const defaultPort = 5432

type ParameterClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ ParameterClient = (*ssm.Client)(nil)

// Credential is held in memory for one invocation only.
type Credential struct {
	Username string
	Password string
	Host     string
	Port     int
	DBName   string
}

// String never prints the password.
func (c Credential) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.Username, c.Host, c.Port, c.DBName)
}

// WithOverrides replaces host, database name and port when the configuration sets them.
func (c Credential) WithOverrides(ref config.DBRef) Credential {
	if ref.Host != "" {
		c.Host = ref.Host
	}
	if ref.Name != "" {
		c.DBName = ref.Name
	}
	if ref.Port != 0 {
		c.Port = ref.Port
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	return c
}

type secretDocument struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     any    `json:"port"`
	DBName   string `json:"dbname"`
}

type Reader struct {
	ssm ParameterClient
}

func NewReader(c ParameterClient) *Reader {
	return &Reader{ssm: c}
}

// Credential fetches and parses the secret document for ref, then applies ref's overrides.
func (r *Reader) Credential(ctx context.Context, ref config.DBRef) (Credential, error) {
	raw, err := r.Value(ctx, ParameterName(ref.SecretID))
	if err != nil {
		return Credential{}, err
	}
	cred, err := ParseCredential(raw)
	if err != nil {
		return Credential{}, err
	}
	return cred.WithOverrides(ref), nil
}

// Value reads a decrypted parameter value.
func (r *Reader) Value(ctx context.Context, name string) (string, error) {
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", apperr.Connectivity(fmt.Sprintf("ssm get parameter %s", name), err)
	}
	if out.Parameter == nil || strings.TrimSpace(aws.ToString(out.Parameter.Value)) == "" {
		return "", apperr.Data(fmt.Sprintf("parameter %s has no value", name), nil)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// ParameterName maps a secret id or ARN to its Parameter Store reference path.
// Names that already look like parameter paths are returned unchanged.
func ParameterName(secretID string) string {
	secretID = strings.TrimSpace(secretID)
	if strings.HasPrefix(secretID, "/") {
		return secretID
	}
	return secretsManagerPrefix + secretID
}

func ParseCredential(raw string) (Credential, error) {
	var doc secretDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Credential{}, apperr.Data("malformed secret document", err)
	}
	if doc.Username == "" || doc.Password == "" {
		return Credential{}, apperr.Data("secret document missing username or password", nil)
	}

	port, err := parsePort(doc.Port)
	if err != nil {
		return Credential{}, apperr.Data("secret document has invalid port", err)
	}

	return Credential{
		Username: doc.Username,
		Password: doc.Password,
		Host:     doc.Host,
		Port:     port,
		DBName:   doc.DBName,
	}, nil
}

func parsePort(v any) (int, error) {
	switch p := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(p), nil
	case string:
		if strings.TrimSpace(p) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(p))
	default:
		return 0, fmt.Errorf("unexpected port type %T", v)
	}
}
