// Package reconcile は登録操作の調停ロジックを提供する。
//
// システムオブレコードはPostgreSQLストアであり、Microsoft Graphへの
// ミラーはベストエフォートで行う。ミラーの失敗は警告として報告し、
// 操作全体を失敗させることは決してない。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/plerouge/enrollman/internal/graph"
	"github.com/plerouge/enrollman/internal/model"
	"github.com/plerouge/enrollman/internal/security"
	"github.com/plerouge/enrollman/internal/store"
)

// Recorder は登録操作の計測フック。
type Recorder interface {
	// RecordEnroll は主系への書き込み結果を記録する。
	RecordEnroll(operation string, success bool)
	// RecordMirror はミラー書き込みの結果を記録する。
	RecordMirror(operation string, success bool)
}

// Warning はミラー書き込みやデータ再読み込みの警告1件を表す。
// 警告は操作の成功を覆さない。
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchOutcome は一括登録・解除の結果を表す。
type BatchOutcome struct {
	BatchID      string    `json:"batch_id"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Mirrored     bool      `json:"mirrored"`
	Warnings     []Warning `json:"warnings,omitempty"`
	Errors       []string  `json:"errors,omitempty"`
	Summary      string    `json:"summary"`
}

// Service は登録調停のサービス層。
type Service struct {
	gateway   store.Gateway
	directory graph.Directory
	guard     security.SSRFGuardService
	logger    *slog.Logger
	recorder  Recorder
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewService(gateway store.Gateway, directory graph.Directory, guard security.SSRFGuardService, logger *slog.Logger, recorder Recorder) *Service {
	return &Service{
		gateway:   gateway,
		directory: directory,
		guard:     guard,
		logger:    logger,
		recorder:  recorder,
	}
}

// performedBy は操作者の識別子を返す。
// Microsoftログイン中はそのアカウント名、未ログイン時は固定値を使う。
func (s *Service) performedBy() string {
	if account := s.directory.Account(); account != nil {
		return account.Username
	}
	return "dashboard"
}

// mirrorSession はバッチ1回分のミラー書き込みコンテキスト。
// サイトIDの解決はバッチ先頭で1回だけ行う。
type mirrorSession struct {
	active      bool
	graphSiteID string
}

// prepareMirror はミラー書き込みの可否を判定し、サイトIDを解決する。
// 未ログイン時のスキップは警告ではなく、結果メッセージにのみ反映される。
// サイトURL検証またはサイトID解決に失敗した場合はミラーを無効化して警告を返す。
func (s *Service) prepareMirror(ctx context.Context, site *model.Site, outcome *BatchOutcome) mirrorSession {
	if !s.directory.IsLoggedIn() {
		return mirrorSession{}
	}

	// ストア上のサイトURLはGraphのサイトID解決に使われるため、
	// 外部リクエストに乗せる前にSSRF検証を通す。
	if err := s.guard.ValidateSiteURL(site.URL); err != nil {
		s.logger.Warn("サイトURLの検証に失敗したためミラーを無効化します",
			slog.String("batch_id", outcome.BatchID),
			slog.String("site_url", site.URL),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    model.ErrCodeMirrorFailed,
			Message: fmt.Sprintf("URL du site SharePoint rejetée : %s", site.Name),
		})
		return mirrorSession{}
	}

	graphSiteID, err := s.directory.ResolveSiteID(ctx, site.URL)
	if err != nil {
		s.logger.Warn("サイトIDの解決に失敗したためミラーを無効化します",
			slog.String("batch_id", outcome.BatchID),
			slog.String("site_url", site.URL),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    model.ErrCodeMirrorFailed,
			Message: fmt.Sprintf("Site SharePoint introuvable dans Microsoft Graph : %s", site.Name),
		})
		return mirrorSession{}
	}

	return mirrorSession{active: true, graphSiteID: graphSiteID}
}

// ReconcileEnroll は選択された利用者を1つのサイトに一括登録する。
//
// 書き込み順序は常に「主系が先、ミラーが後」であり、主系への書き込みが
// 失敗した利用者のミラー書き込みは行わない。利用者単位の失敗は記録して
// 次の利用者へ進み、バッチ全体は止めない。
func (s *Service) ReconcileEnroll(ctx context.Context, userIDs []string, siteID int) (*BatchOutcome, error) {
	// 入力検証。ここで失敗した場合は一切のI/Oを行わない。
	if siteID == 0 {
		return nil, model.NewNoSiteSelectedError()
	}
	if len(userIDs) == 0 {
		return nil, model.NewEmptySelectionError()
	}
	if !s.gateway.IsConnected() {
		return nil, model.NewConnectionRequiredError()
	}

	outcome := &BatchOutcome{BatchID: uuid.New().String()}
	start := time.Now()

	site, err := s.gateway.FindSite(ctx, siteID)
	if err != nil {
		return nil, model.NewQueryFailedError(err.Error())
	}
	if site == nil {
		return nil, model.NewSiteNotFoundError(siteID)
	}

	mirror := s.prepareMirror(ctx, site, outcome)
	enrolledBy := s.performedBy()

	for _, userID := range userIDs {
		user, err := s.gateway.FindUser(ctx, userID)
		if err != nil {
			s.recordPrimary("enroll", false)
			outcome.ErrorCount++
			outcome.Errors = append(outcome.Errors, model.NewUserNotFoundError(userID).Message)
			continue
		}
		if user == nil {
			s.recordPrimary("enroll", false)
			outcome.ErrorCount++
			outcome.Errors = append(outcome.Errors, model.NewUserNotFoundError(userID).Message)
			continue
		}

		// 主系への書き込み。失敗したらこの利用者のミラーは行わない。
		if err := s.gateway.Enroll(ctx, userID, siteID, enrolledBy); err != nil {
			s.recordPrimary("enroll", false)
			s.logger.Error("登録の書き込みに失敗しました",
				slog.String("batch_id", outcome.BatchID),
				slog.String("user_id", userID),
				slog.Int("site_id", siteID),
				slog.String("error", err.Error()),
			)
			outcome.ErrorCount++
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("Échec de l'inscription de %s", user.DisplayName))
			continue
		}
		s.recordPrimary("enroll", true)
		outcome.SuccessCount++

		if mirror.active {
			s.mirrorAdd(ctx, mirror.graphSiteID, user, outcome)
		}
	}

	outcome.Mirrored = mirror.active
	outcome.Summary = enrollSummary(outcome)

	s.logger.Info("一括登録が完了しました",
		slog.String("batch_id", outcome.BatchID),
		slog.Int("site_id", siteID),
		slog.Int("success_count", outcome.SuccessCount),
		slog.Int("error_count", outcome.ErrorCount),
		slog.Bool("mirrored", outcome.Mirrored),
		slog.Duration("elapsed", time.Since(start)),
	)

	return outcome, nil
}

// mirrorAdd は1利用者分のミラー追加を行う。失敗は警告のみ。
func (s *Service) mirrorAdd(ctx context.Context, graphSiteID string, user *model.User, outcome *BatchOutcome) {
	extUser, err := s.directory.ResolveUserByEmail(ctx, user.Email)
	if err != nil {
		s.recordMirror("mirror_add", false)
		s.logger.Warn("ディレクトリ利用者の解決に失敗しました",
			slog.String("batch_id", outcome.BatchID),
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    model.ErrCodeMirrorFailed,
			Message: fmt.Sprintf("Compte Microsoft introuvable pour %s", user.Email),
		})
		return
	}

	if err := s.directory.AddMember(ctx, graphSiteID, extUser.ID); err != nil {
		s.recordMirror("mirror_add", false)
		s.logger.Warn("ミラーへのメンバー追加に失敗しました",
			slog.String("batch_id", outcome.BatchID),
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    model.ErrCodeMirrorFailed,
			Message: fmt.Sprintf("Réplication SharePoint échouée pour %s", user.DisplayName),
		})
		return
	}
	s.recordMirror("mirror_add", true)
}

// ReconcileUnenroll は1利用者の1サイトからの登録解除を行う。
// confirmedがfalseの場合は一切のI/Oを行わず確認要求エラーを返す。
func (s *Service) ReconcileUnenroll(ctx context.Context, userID string, siteID int, confirmed bool) (*BatchOutcome, error) {
	if userID == "" || siteID == 0 {
		return nil, model.NewNoSiteSelectedError()
	}
	if !confirmed {
		return nil, model.NewConfirmationRequiredError()
	}
	if !s.gateway.IsConnected() {
		return nil, model.NewConnectionRequiredError()
	}

	outcome := &BatchOutcome{BatchID: uuid.New().String()}

	site, err := s.gateway.FindSite(ctx, siteID)
	if err != nil {
		return nil, model.NewQueryFailedError(err.Error())
	}
	if site == nil {
		return nil, model.NewSiteNotFoundError(siteID)
	}

	user, err := s.gateway.FindUser(ctx, userID)
	if err != nil {
		return nil, model.NewQueryFailedError(err.Error())
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	mirror := s.prepareMirror(ctx, site, outcome)

	// 主系への書き込みが先。失敗したらミラーには触れない。
	if err := s.gateway.Unenroll(ctx, userID, siteID, s.performedBy()); err != nil {
		s.recordPrimary("unenroll", false)
		s.logger.Error("登録解除の書き込みに失敗しました",
			slog.String("batch_id", outcome.BatchID),
			slog.String("user_id", userID),
			slog.Int("site_id", siteID),
			slog.String("error", err.Error()),
		)
		return nil, &model.APIError{
			Code:     model.ErrCodeUnenrollFailed,
			Message:  fmt.Sprintf("Échec de la désinscription de %s", user.DisplayName),
			Category: "enrollment",
			Action:   "Rechargez les données et réessayez.",
		}
	}
	s.recordPrimary("unenroll", true)
	outcome.SuccessCount = 1

	if mirror.active {
		s.mirrorRemove(ctx, mirror.graphSiteID, user, outcome)
	}

	outcome.Mirrored = mirror.active
	outcome.Summary = unenrollSummary(outcome)

	s.logger.Info("登録解除が完了しました",
		slog.String("batch_id", outcome.BatchID),
		slog.String("user_id", userID),
		slog.Int("site_id", siteID),
		slog.Bool("mirrored", outcome.Mirrored),
	)

	return outcome, nil
}

// mirrorRemove は1利用者分のミラー削除を行う。失敗は警告のみ。
func (s *Service) mirrorRemove(ctx context.Context, graphSiteID string, user *model.User, outcome *BatchOutcome) {
	extUser, err := s.directory.ResolveUserByEmail(ctx, user.Email)
	if err != nil {
		s.recordMirror("mirror_remove", false)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    model.ErrCodeMirrorFailed,
			Message: fmt.Sprintf("Compte Microsoft introuvable pour %s", user.Email),
		})
		return
	}

	if err := s.directory.RemoveMember(ctx, graphSiteID, extUser.ID); err != nil {
		s.recordMirror("mirror_remove", false)
		s.logger.Warn("ミラーからのメンバー削除に失敗しました",
			slog.String("batch_id", outcome.BatchID),
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    model.ErrCodeMirrorFailed,
			Message: fmt.Sprintf("Suppression SharePoint échouée pour %s", user.DisplayName),
		})
		return
	}
	s.recordMirror("mirror_remove", true)
}

// enrollSummary は一括登録の結果メッセージを組み立てる。
func enrollSummary(outcome *BatchOutcome) string {
	var summary string
	switch {
	case outcome.SuccessCount == 0:
		summary = "Aucune inscription effectuée."
	case outcome.Mirrored:
		summary = fmt.Sprintf("%d inscription(s) effectuée(s) dans SharePoint", outcome.SuccessCount)
	default:
		summary = fmt.Sprintf("%d inscription(s) enregistrée(s) (Microsoft non connecté)", outcome.SuccessCount)
	}
	if outcome.ErrorCount > 0 {
		summary += fmt.Sprintf(" · %d erreur(s)", outcome.ErrorCount)
	}
	return summary
}

// unenrollSummary は登録解除の結果メッセージを組み立てる。
func unenrollSummary(outcome *BatchOutcome) string {
	if outcome.Mirrored {
		return "Désinscription effectuée dans SharePoint"
	}
	return "Désinscription enregistrée (Microsoft non connecté)"
}

func (s *Service) recordPrimary(operation string, success bool) {
	if s.recorder != nil {
		s.recorder.RecordEnroll(operation, success)
	}
}

func (s *Service) recordMirror(operation string, success bool) {
	if s.recorder != nil {
		s.recorder.RecordMirror(operation, success)
	}
}
