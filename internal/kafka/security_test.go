package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

func TestConfigureSecurity(t *testing.T) {
	tests := []struct {
		name          string
		sec           SecurityConfig
		wantErr       bool
		wantTLS       bool
		wantSASL      bool
		wantMechanism sarama.SASLMechanism
	}{
		{name: "empty is plaintext", sec: SecurityConfig{}},
		{name: "plaintext", sec: SecurityConfig{Protocol: "PLAINTEXT"}},
		{name: "ssl", sec: SecurityConfig{Protocol: "SSL"}, wantTLS: true},
		{
			name:          "sasl plain",
			sec:           SecurityConfig{Protocol: "SASL_PLAINTEXT", Mechanism: "PLAIN", Username: "u", Password: "p"},
			wantSASL:      true,
			wantMechanism: sarama.SASLTypePlaintext,
		},
		{
			name:          "sasl ssl scram 256",
			sec:           SecurityConfig{Protocol: "SASL_SSL", Mechanism: "SCRAM-SHA-256", Username: "u", Password: "p"},
			wantTLS:       true,
			wantSASL:      true,
			wantMechanism: sarama.SASLTypeSCRAMSHA256,
		},
		{
			name:          "scram 512 lower case",
			sec:           SecurityConfig{Protocol: "sasl_ssl", Mechanism: "scram-sha-512", Username: "u", Password: "p"},
			wantTLS:       true,
			wantSASL:      true,
			wantMechanism: sarama.SASLTypeSCRAMSHA512,
		},
		{
			name:          "msk iam",
			sec:           SecurityConfig{Protocol: "SASL_SSL", Mechanism: "AWS_MSK_IAM", AWSRegion: "eu-west-1"},
			wantTLS:       true,
			wantSASL:      true,
			wantMechanism: sarama.SASLTypeOAuth,
		},
		{name: "msk iam without region", sec: SecurityConfig{Protocol: "SASL_SSL", Mechanism: "AWS_MSK_IAM"}, wantErr: true},
		{name: "unknown mechanism", sec: SecurityConfig{Protocol: "SASL_SSL", Mechanism: "GSSAPI"}, wantErr: true},
		{name: "unknown protocol", sec: SecurityConfig{Protocol: "QUIC"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := sarama.NewConfig()
			err := ConfigureSecurity(config, tt.sec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfigureSecurity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if config.Net.TLS.Enable != tt.wantTLS {
				t.Errorf("TLS.Enable = %v, want %v", config.Net.TLS.Enable, tt.wantTLS)
			}
			if config.Net.SASL.Enable != tt.wantSASL {
				t.Errorf("SASL.Enable = %v, want %v", config.Net.SASL.Enable, tt.wantSASL)
			}
			if tt.wantSASL && config.Net.SASL.Mechanism != tt.wantMechanism {
				t.Errorf("SASL.Mechanism = %v, want %v", config.Net.SASL.Mechanism, tt.wantMechanism)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("sarama config invalid: %v", err)
			}
		})
	}
}

func TestMSKAccessTokenProvider_Token(t *testing.T) {
	provider := &MSKAccessTokenProvider{
		region: "eu-west-1",
		generate: func(ctx context.Context, region string) (string, int64, error) {
			if region != "eu-west-1" {
				t.Errorf("region = %s, want eu-west-1", region)
			}
			return "signed-token", 1700000000000, nil
		},
	}

	token, err := provider.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token.Token != "signed-token" {
		t.Errorf("Token = %s, want signed-token", token.Token)
	}
	if token.Extensions["expiry"] != "1700000000000" {
		t.Errorf("expiry = %s", token.Extensions["expiry"])
	}

	provider.generate = func(ctx context.Context, region string) (string, int64, error) {
		return "", 0, errors.New("no credentials")
	}
	if _, err := provider.Token(); err == nil {
		t.Error("Token() expected error when signing fails")
	}
}

// TestXDGSCRAMClient_Conversation runs a full exchange against an xdg-go/scram server.
func TestXDGSCRAMClient_Conversation(t *testing.T) {
	tests := []struct {
		name   string
		hash   scram.HashGeneratorFcn
		server scram.HashGeneratorFcn
	}{
		{"SHA-256", SHA256, scram.SHA256},
		{"SHA-512", SHA512, scram.SHA512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serverClient, err := tt.server.NewClient("audit", "s3cret", "")
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			stored := serverClient.GetStoredCredentials(scram.KeyFactors{Salt: "pepper", Iters: 4096})

			server, err := tt.server.NewServer(func(user string) (scram.StoredCredentials, error) {
				if user != "audit" {
					return scram.StoredCredentials{}, errors.New("unknown user")
				}
				return stored, nil
			})
			if err != nil {
				t.Fatalf("NewServer() error = %v", err)
			}
			conv := server.NewConversation()

			client := &XDGSCRAMClient{HashGeneratorFcn: tt.hash}
			if err := client.Begin("audit", "s3cret", ""); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}

			challenge := ""
			for !client.Done() {
				msg, err := client.Step(challenge)
				if err != nil {
					t.Fatalf("client Step() error = %v", err)
				}
				if client.Done() {
					break
				}
				challenge, err = conv.Step(msg)
				if err != nil {
					t.Fatalf("server Step() error = %v", err)
				}
			}

			if !conv.Valid() {
				t.Error("server did not authenticate the client")
			}
		})
	}
}
