package util

import (
	"bytes"
	"compress/gzip"
	"testing"

	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type natsPayload struct {
	Type  string `json:"type" msgpack:"type"`
	Count int    `json:"count" msgpack:"count"`
}

func TestDecodeNatsMsg(t *testing.T) {
	data := []byte(`{"type":"audit.completed","count":2}`)
	m := nats.NewMsg("procure.maintenance.audit.completed")
	m.Data = data
	var o natsPayload
	require.NoError(t, DecodeNatsMsg(m, &o))
	assert.Equal(t, "audit.completed", o.Type)
	assert.Equal(t, 2, o.Count)

	var gzipBuf bytes.Buffer
	gz := gzip.NewWriter(&gzipBuf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	m.Data = gzipBuf.Bytes()
	m.Header.Set("content-encoding", "gzip/json")
	o = natsPayload{}
	require.NoError(t, DecodeNatsMsg(m, &o))
	assert.Equal(t, "audit.completed", o.Type)

	m.Data, err = msgpack.Marshal(natsPayload{Type: "repair.completed", Count: 3})
	require.NoError(t, err)
	m.Header.Set("content-encoding", "msgpack")
	o = natsPayload{}
	require.NoError(t, DecodeNatsMsg(m, &o))
	assert.Equal(t, "repair.completed", o.Type)
	assert.Equal(t, 3, o.Count)

	m.Data = []byte("{")
	m.Header.Del("content-encoding")
	assert.Error(t, DecodeNatsMsg(m, &o))
}
