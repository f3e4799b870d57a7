package obs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthToken(t *testing.T) {
	testCases := []struct {
		name      string
		password  string
		salt      string
		challenge string
		expected  string
	}{
		{
			name:      "documented handshake example",
			password:  "supersecret",
			salt:      "PZVbYpvAnZut2SS6JNJytDm9",
			challenge: "ztTBnnuqrqaKDzRM3xcVdbYm",
			expected:  "8feeOF01ujNBiQFBqMMiEb6/yB/tJDZyX2sosCp5zLU=",
		},
		{
			name:      "empty password",
			password:  "",
			salt:      "salt",
			challenge: "challenge",
			expected:  "5fmcrqR0I7snYOpUX/Ac22UdSA81TwCyHqCr6eFQyyI=",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, authToken(tc.password, tc.salt, tc.challenge))
		})
	}
}

func TestHelloDecoding(t *testing.T) {
	raw := `{"op":0,"d":{"obsWebSocketVersion":"5.3.3","rpcVersion":1,"authentication":{"challenge":"chal","salt":"salty"}}}`

	var msg message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, opHello, msg.Op)

	var hello helloData
	require.NoError(t, json.Unmarshal(msg.D, &hello))
	assert.Equal(t, 1, hello.RPCVersion)
	require.NotNil(t, hello.Authentication)
	assert.Equal(t, "chal", hello.Authentication.Challenge)
	assert.Equal(t, "salty", hello.Authentication.Salt)
}

func TestHelloWithoutAuthChallenge(t *testing.T) {
	raw := `{"obsWebSocketVersion":"5.3.3","rpcVersion":1}`

	var hello helloData
	require.NoError(t, json.Unmarshal([]byte(raw), &hello))
	assert.Nil(t, hello.Authentication)
}

func TestRequestEncoding(t *testing.T) {
	req := requestData{
		RequestType: "SetCurrentProgramScene",
		RequestID:   "req-1",
		RequestData: map[string]any{"sceneName": "Game"},
	}
	frame, err := json.Marshal(message{Op: opRequest, D: mustMarshal(t, req)})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"op": 6,
		"d": {
			"requestType": "SetCurrentProgramScene",
			"requestId": "req-1",
			"requestData": {"sceneName": "Game"}
		}
	}`, string(frame))
}

func TestSceneListDecoding(t *testing.T) {
	raw := `{
		"currentProgramSceneName": "Intro",
		"scenes": [
			{"sceneName": "Game", "sceneIndex": 0},
			{"sceneName": "Intro", "sceneIndex": 1}
		]
	}`

	var resp sceneListResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, "Intro", resp.CurrentProgramSceneName)
	require.Len(t, resp.Scenes, 2)
	assert.Equal(t, "Game", resp.Scenes[0].SceneName)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
