package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classroom-backend/internal/lifecycle"
)

func newMeetingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "meeting",
		Aliases: []string{"mtg"},
		Short:   "강의실 미팅 관리 (생성, 취소, 강제 종료)",
	}
	cmd.AddCommand(newMeetingCreateCmd())
	cmd.AddCommand(newMeetingCancelCmd())
	cmd.AddCommand(newMeetingEndCmd())
	return cmd
}

func newMeetingCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "강의실 미팅 생성",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			noChat, _ := cmd.Flags().GetBool("no-chat")
			noWhiteboard, _ := cmd.Flags().GetBool("no-whiteboard")
			noScreenShare, _ := cmd.Flags().GetBool("no-screen-share")
			capacity, _ := cmd.Flags().GetInt("capacity")

			meeting, err := newController(cmd, db).CreateMeeting(cmd.Context(),
				mustGetInt64(cmd, "actor"),
				mustGetInt64(cmd, "classroom"),
				lifecycle.MeetingSpec{
					Title:              mustGetString(cmd, "title"),
					AccessSecret:       mustGetString(cmd, "secret"),
					Capacity:           capacity,
					WhiteboardEnabled:  !noWhiteboard,
					ChatEnabled:        !noChat,
					ScreenShareEnabled: !noScreenShare,
				})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Meeting created: %s (%s)\n", meeting.ID, meeting.Title)
			return nil
		},
	}
	c.Flags().Int64("classroom", 0, "강의실 ID (필수)")
	c.Flags().Int64("actor", 0, "생성하는 사용자 ID, 담당 강사 또는 관리자 (필수)")
	c.Flags().String("title", "", "미팅 제목 (기본값은 강의실 이름)")
	c.Flags().String("secret", "", "입장 비밀번호")
	c.Flags().Int("capacity", 100, "정원 (0 이면 무제한)")
	c.Flags().Bool("no-chat", false, "채팅 비활성화")
	c.Flags().Bool("no-whiteboard", false, "화이트보드 비활성화")
	c.Flags().Bool("no-screen-share", false, "화면 공유 비활성화")
	_ = c.MarkFlagRequired("classroom")
	_ = c.MarkFlagRequired("actor")
	return c
}

func newMeetingCancelCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cancel",
		Short: "예정된 미팅 취소",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			meeting, err := newController(cmd, db).Cancel(cmd.Context(), mustGetString(cmd, "meeting"), mustGetInt64(cmd, "actor"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️ Meeting %s is %s\n", meeting.ID, meeting.Status)
			return nil
		},
	}
	c.Flags().String("meeting", "", "미팅 ID (필수)")
	c.Flags().Int64("actor", 0, "취소하는 사용자 ID (필수)")
	_ = c.MarkFlagRequired("meeting")
	_ = c.MarkFlagRequired("actor")
	return c
}

// newMeetingEndCmd 게이트웨이가 죽은 채 live 로 남은 미팅 정리용
func newMeetingEndCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "end",
		Short: "진행 중인 미팅 강제 종료",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			result, err := newController(cmd, db).End(cmd.Context(), mustGetString(cmd, "meeting"), mustGetInt64(cmd, "actor"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🛑 Meeting %s ended, %d participants flushed\n", result.Meeting.ID, result.Flushed)
			return nil
		},
	}
	c.Flags().String("meeting", "", "미팅 ID (필수)")
	c.Flags().Int64("actor", 0, "종료하는 사용자 ID, host/co-host 또는 관리자 (필수)")
	_ = c.MarkFlagRequired("meeting")
	_ = c.MarkFlagRequired("actor")
	return c
}
