// Package forms implements the leave request and problem report flows:
// a slash command posts a button, the button opens a modal, and the modal
// submission is posted as an embed to a configured channel.
package forms

import (
	"strings"
	"time"

	"github.com/dwizi/groundbot/internal/connectors/discord"
)

const (
	CommandSetupLeave  = "setup_leave_button"
	CommandSetupReport = "setup_report_button"

	LeaveButtonID  = "leave_button"
	ReportButtonID = "report_button"
	LeaveModalID   = "leave_modal"
	ReportModalID  = "report_modal"

	LeaveDatesField  = "leave_dates"
	LeaveReasonField = "leave_reason"
	LeaveNoteField   = "leave_note"

	ReportTitleField = "report_title"
	ReportTypeField  = "report_type"
	ReportDescField  = "report_desc"
)

const (
	notFilled = "（未填）"
	noNote    = "（無）"
	panelHint = "按下按鈕後會跳出表單，填完送出即可。"
)

// Commands are registered to the configured guilds at startup.
func Commands() []discord.Command {
	return []discord.Command{
		{Name: CommandSetupLeave, Description: "在目前頻道發送「請假」按鈕"},
		{Name: CommandSetupReport, Description: "在目前頻道發送「問題回報」按鈕"},
	}
}

func LeaveButtonMessage() discord.MessageSend {
	return panel("請假申請", LeaveButtonID, "📩 請假申請", discord.ButtonPrimary)
}

func ReportButtonMessage() discord.MessageSend {
	return panel("問題回報", ReportButtonID, "🛠️ 問題回報", discord.ButtonDanger)
}

func panel(title, buttonID, label string, style int) discord.MessageSend {
	return discord.MessageSend{
		Embeds: []discord.Embed{{Title: title, Description: panelHint}},
		Components: []discord.Component{{
			Type: discord.ComponentActionRow,
			Components: []discord.Component{{
				Type:     discord.ComponentButton,
				CustomID: buttonID,
				Label:    label,
				Style:    style,
			}},
		}},
	}
}

func LeaveModal() discord.InteractionResponse {
	return modal(LeaveModalID, "請假表單",
		textInput(LeaveDatesField, "請假時間", discord.TextInputShort, true, 0),
		textInput(LeaveReasonField, "原因", discord.TextInputParagraph, true, 0),
		textInput(LeaveNoteField, "備註（可選）", discord.TextInputParagraph, false, 0),
	)
}

func ReportModal() discord.InteractionResponse {
	return modal(ReportModalID, "問題回報表單",
		textInput(ReportTitleField, "標題", discord.TextInputShort, true, 60),
		textInput(ReportTypeField, "類型（問題 / 建議 / 其他）", discord.TextInputShort, true, 30),
		textInput(ReportDescField, "詳細描述", discord.TextInputParagraph, true, 1000),
	)
}

func modal(customID, title string, inputs ...discord.Component) discord.InteractionResponse {
	rows := make([]discord.Component, 0, len(inputs))
	for _, input := range inputs {
		rows = append(rows, discord.Component{
			Type:       discord.ComponentActionRow,
			Components: []discord.Component{input},
		})
	}
	return discord.InteractionResponse{
		Type: discord.ResponseModal,
		Data: &discord.InteractionResponseData{CustomID: customID, Title: title, Components: rows},
	}
}

func textInput(customID, label string, style int, required bool, maxLength int) discord.Component {
	return discord.Component{
		Type:      discord.ComponentTextInput,
		CustomID:  customID,
		Label:     label,
		Style:     style,
		Required:  &required,
		MaxLength: maxLength,
	}
}

type LeaveRequest struct {
	Applicant discord.User
	Dates     string
	Reason    string
	Note      string
}

func (r LeaveRequest) Embed(at time.Time) discord.Embed {
	note := r.Note
	if strings.TrimSpace(note) == "" {
		note = noNote
	}
	return discord.Embed{
		Title:     "📌 新的請假申請",
		Timestamp: at.UTC().Format(time.RFC3339),
		Fields: []discord.EmbedField{
			{Name: "申請人", Value: r.Applicant.Mention()},
			{Name: "時間", Value: orNotFilled(r.Dates)},
			{Name: "原因", Value: orNotFilled(r.Reason)},
			{Name: "備註", Value: note},
		},
	}
}

type ProblemReport struct {
	Reporter    discord.User
	Title       string
	Type        string
	Description string
}

func (r ProblemReport) Embed(at time.Time) discord.Embed {
	return discord.Embed{
		Title:     "🛠️ 新的問題回報",
		Timestamp: at.UTC().Format(time.RFC3339),
		Fields: []discord.EmbedField{
			{Name: "回報者", Value: r.Reporter.Mention(), Inline: true},
			{Name: "類型", Value: orNotFilled(r.Type), Inline: true},
			{Name: "標題", Value: orNotFilled(r.Title)},
			{Name: "詳細描述", Value: orNotFilled(r.Description)},
		},
	}
}

func orNotFilled(value string) string {
	if strings.TrimSpace(value) == "" {
		return notFilled
	}
	return value
}
