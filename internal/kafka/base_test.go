package kafka

import (
	"testing"

	"github.com/Shopify/sarama"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestGetSaramaConfig(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Kafka.ClientID = "ledgerline-test"

	sc := GetSaramaConfig(cfg)
	assert.Equal(t, "ledgerline-test", sc.ClientID)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.False(t, sc.Net.SASL.Enable)

	cfg.Kafka.UseSASL = true
	cfg.Kafka.SASLMechanism = "SCRAM-SHA-512"
	cfg.Kafka.SASLUser = "u"
	cfg.Kafka.SASLPassword = "p"
	sc = GetSaramaConfig(cfg)
	assert.True(t, sc.Net.SASL.Enable)
	assert.True(t, sc.Net.TLS.Enable)
	assert.Equal(t, sarama.SASLMechanism("SCRAM-SHA-512"), sc.Net.SASL.Mechanism)
	assert.NoError(t, sc.Validate())
}
