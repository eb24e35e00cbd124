package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poker-quiz-bot/internal/domain"
	infraredis "poker-quiz-bot/internal/infra/redis"
)

func TestPrintSessionsListsMirroredRecords(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	live := infraredis.NewSessionStore(client, time.Hour, zerolog.Nop())
	session := live.GetOrCreate(0)
	session.Open(domain.Question{ID: 4, Options: []string{"Fold", "Call"}})
	_, err := session.RecordAnswer(4, 11, 1)
	require.NoError(t, err)
	live.GetOrCreate(-7)

	var out bytes.Buffer
	reader := infraredis.NewSessionStore(client, time.Hour, zerolog.Nop())
	require.NoError(t, printSessions(ctx, reader, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"session":-7,"answers":0,"current_question_id":null}`, lines[0])
	assert.JSONEq(t, `{"session":0,"answers":1,"current_question_id":4}`, lines[1])
}
