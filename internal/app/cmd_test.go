package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", []string{}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate", "down"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"未知のコマンドはserve", []string{"unknown"}, CommandServe},
		{"追加引数は無視", []string{"worker", "--flag", "value"}, CommandWorker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseMigrateArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		want      MigrateAction
		wantSteps int
		wantErr   bool
	}{
		{"引数なしはup", nil, MigrateUp, 0, false},
		{"up", []string{"up"}, MigrateUp, 0, false},
		{"version", []string{"version"}, MigrateVersion, 0, false},
		{"downのステップ省略は1", []string{"down"}, MigrateDown, 1, false},
		{"downのステップ指定", []string{"down", "3"}, MigrateDown, 3, false},
		{"不正なステップ数", []string{"down", "0"}, "", 0, true},
		{"数値でないステップ数", []string{"down", "all"}, "", 0, true},
		{"未知の操作", []string{"sideways"}, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, steps, err := ParseMigrateArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMigrateArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if action != tt.want || steps != tt.wantSteps {
				t.Errorf("ParseMigrateArgs(%v) = (%q, %d), want (%q, %d)", tt.args, action, steps, tt.want, tt.wantSteps)
			}
		})
	}
}
