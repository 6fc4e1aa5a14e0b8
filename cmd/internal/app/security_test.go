package app

import "testing"

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cfg       Config
		endpoints []string
		wantErr   bool
	}{
		{name: "policy off", cfg: Config{APIBaseURL: "http://chat.example.com/api/v1"}},
		{name: "https and wss", cfg: Config{APIBaseURL: "https://chat.example.com/api/v1", RequireTLS: true}, endpoints: []string{"wss://chat.example.com/api/v1/rooms/ws"}},
		{name: "loopback exempt", cfg: Config{APIBaseURL: "http://127.0.0.1:8080/api/v1", RequireTLS: true}, endpoints: []string{"ws://localhost:8080/api/v1/rooms/ws"}},
		{name: "plain api", cfg: Config{APIBaseURL: "http://chat.example.com/api/v1", RequireTLS: true}, wantErr: true},
		{name: "plain channel", cfg: Config{APIBaseURL: "https://chat.example.com/api/v1", RequireTLS: true}, endpoints: []string{"ws://chat.example.com/api/v1/rooms/ws"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSecurityConfig(tc.cfg, tc.endpoints...)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}
