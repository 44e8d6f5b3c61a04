package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"classroom-backend/internal/store"
)

func newParticipantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participants",
		Short: "참가자 상태 관리",
	}
	cmd.AddCommand(newParticipantsResetCmd())
	return cmd
}

func newParticipantsResetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "reset",
		Short: "접속 중으로 남은 참가자를 퇴장 처리 (게이트웨이 비정상 종료 후)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			meetingID := mustGetString(cmd, "meeting")
			n, err := store.New(db).ResetPresence(cmd.Context(), meetingID, time.Now().UTC())
			if err != nil {
				return err
			}

			scope := "all meetings"
			if meetingID != "" {
				scope = "meeting " + meetingID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🧹 Reset %d participants in %s\n", n, scope)
			return nil
		},
	}
	c.Flags().String("meeting", "", "미팅 ID (비우면 전체)")
	return c
}
