package repository

import (
	"encoding/json"
	"testing"
)

// PostgresEnrollmentRepoはEnrollmentRepositoryインターフェースを満たすことを検証
func TestPostgresEnrollmentRepo_ImplementsInterface(t *testing.T) {
	var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
}

// ストアドファンクションの成功ペイロードが正しく解析されることを検証
func TestProcResult_ParsesSuccess(t *testing.T) {
	raw := []byte(`{"success": true, "message": "inscription enregistrée"}`)

	var result procResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}
	if !result.Success {
		t.Error("result.Success = false, want true")
	}
	if result.Message != "inscription enregistrée" {
		t.Errorf("result.Message = %q, want %q", result.Message, "inscription enregistrée")
	}
}

// ストアドファンクションの失敗ペイロードが正しく解析されることを検証
func TestProcResult_ParsesFailure(t *testing.T) {
	raw := []byte(`{"success": false, "message": "aucune inscription active"}`)

	var result procResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}
	if result.Success {
		t.Error("result.Success = true, want false")
	}
}
