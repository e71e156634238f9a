package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	speechmodel "github.com/zhouzirui/docchat/backend/internal/model/speech"
	"github.com/zhouzirui/docchat/backend/internal/service/speech"
)

func newTranscribeCmd() *cobra.Command {
	var (
		audioPath string
		language  string
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Send an audio file to the whisper service and print the text",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Speech == nil {
				return errors.New("语音服务未启用，请先配置 WHISPER_URL")
			}
			return transcribeFile(cmd, a.Speech, audioPath, language)
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "audio file to transcribe")
	cmd.Flags().StringVar(&language, "lang", "", "language code, defaults to SPEECH_LANGUAGE")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func transcribeFile(cmd *cobra.Command, svc *speech.Service, path, language string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("读取音频失败: %w", err)
	}
	defer f.Close()

	resp, err := svc.Transcribe(cmd.Context(), &speechmodel.TranscriptionRequest{
		SessionID: "ragctl",
		AudioData: f,
		Filename:  filepath.Base(path),
		Format:    speechmodel.InferAudioFormat(path),
		Language:  language,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "(%d ms)\n", resp.Duration)
	return nil
}
