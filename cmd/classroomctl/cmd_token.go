package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "액세스 토큰 관리",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

// newTokenIssueCmd 로컬 테스트용 토큰 발급 (WebSocket 클라이언트 연결 확인 등)
func newTokenIssueCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "issue",
		Short: "사용자 액세스 토큰 발급",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := mustGetString(cmd, "secret")
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("JWT secret is required (--secret or JWT_SECRET)")
			}
			issuer := os.Getenv("JWT_ISSUER")
			expiry, _ := cmd.Flags().GetDuration("expiry")

			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			user, err := service.NewMemberService(db).LookupUser(cmd.Context(), mustGetInt64(cmd, "user"))
			if err != nil {
				return err
			}

			token, err := auth.NewJWTManager(secret, expiry, issuer).GenerateAccessToken(user.ID, user.Username, user.Role.String())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	c.Flags().Int64("user", 0, "사용자 ID (필수)")
	c.Flags().String("secret", "", "JWT 서명 키 (기본값은 JWT_SECRET)")
	c.Flags().Duration("expiry", time.Hour, "만료 시간")
	_ = c.MarkFlagRequired("user")
	return c
}
