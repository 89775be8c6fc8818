package modem

import "testing"

func TestParseURC(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "socket closed",
			line: `+QIURC: "closed",11`,
			want: Event{Kind: EventSocketClosed, SocketID: 11},
		},
		{
			name: "socket data",
			line: `+QIURC: "recv",2`,
			want: Event{Kind: EventSocketData, SocketID: 2},
		},
		{
			name: "SSL socket closed",
			line: `+QSSLURC: "closed",4`,
			want: Event{Kind: EventSocketClosed, SocketID: 4},
		},
		{
			name: "PDN deactivated",
			line: `+QIURC: "pdpdeact",1`,
			want: Event{Kind: EventPDNDeactivated, ContextID: 1},
		},
		{
			name: "open result success",
			line: `+QIOPEN: 0,0`,
			want: Event{Kind: EventSocketOpened},
		},
		{
			name: "open result failure",
			line: `+QIOPEN: 3,561`,
			want: Event{Kind: EventSocketOpened, SocketID: 3, Code: 561},
		},
		{
			name: "SSL open result",
			line: `+QSSLOPEN: 1,0`,
			want: Event{Kind: EventSocketOpened, SocketID: 1},
		},
		{
			name: "DNS status record",
			line: `+QIURC: "dnsgip",0,2,600`,
			want: Event{Kind: EventDNSResult, Count: 2},
		},
		{
			name: "DNS failure record",
			line: `+QIURC: "dnsgip",565,0,0`,
			want: Event{Kind: EventDNSResult, Code: 565},
		},
		{
			name: "DNS address record",
			line: `+QIURC: "dnsgip","10.0.0.1"`,
			want: Event{Kind: EventDNSResult, Addr: "10.0.0.1"},
		},
		{
			name: "boot notification",
			line: "APP RDY",
			want: Event{Kind: EventReady},
		},
		{
			name: "power down confirmation",
			line: "POWERED DOWN",
			want: Event{Kind: EventPoweredDown},
		},
		{
			name: "unknown notification",
			line: `+QIND: SMS DONE`,
			want: Event{Kind: EventOther},
		},
		{
			name: "known prefix with garbage fields",
			line: `+QIURC: "closed",notanumber`,
			want: Event{Kind: EventOther},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseURC(tc.line)
			tc.want.Line = tc.line
			if got != tc.want {
				t.Errorf("parseURC(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestPSMTimerCodec(t *testing.T) {
	t.Run("Round trip over the full range", func(t *testing.T) {
		for unit := uint8(0); unit <= 7; unit++ {
			for value := uint8(0); value <= 31; value++ {
				in := PSMTimer{Unit: unit, Value: value}
				pattern, err := in.encode()
				if err != nil {
					t.Fatalf("encode(%+v) failed: %v", in, err)
				}
				out, err := decodePSMTimer(pattern)
				if err != nil {
					t.Fatalf("decode(%q) failed: %v", pattern, err)
				}
				if out != in {
					t.Fatalf("round trip %+v -> %q -> %+v", in, pattern, out)
				}
			}
		}
	})

	t.Run("Decode rejects malformed patterns", func(t *testing.T) {
		for _, s := range []string{"", "1010001", "101000100", "1010001x"} {
			if _, err := decodePSMTimer(s); err == nil {
				t.Errorf("decode(%q) should fail", s)
			}
		}
	})
}

func TestDecodeHPLMN(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		mcc     string
		mnc     string
		wantErr bool
	}{
		{name: "two-digit MNC", data: "62F210FFFF", mcc: "262", mnc: "01"},
		{name: "three-digit MNC", data: "130014FFFF", mcc: "310", mnc: "410"},
		{name: "lowercase input", data: "62f210ffff", mcc: "262", mnc: "01"},
		{name: "erased record", data: "FFFFFFFFFF", wantErr: true},
		{name: "too short", data: "62F210", wantErr: true},
		{name: "empty", data: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mcc, mnc, err := decodeHPLMN(tc.data)
			if tc.wantErr {
				if err == nil {
					t.Errorf("decodeHPLMN(%q) should fail", tc.data)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mcc != tc.mcc || mnc != tc.mnc {
				t.Errorf("decodeHPLMN(%q) = %q/%q, want %q/%q", tc.data, mcc, mnc, tc.mcc, tc.mnc)
			}
		})
	}
}
