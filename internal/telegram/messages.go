package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sessiongen-telebot/internal/backend"
	"sessiongen-telebot/internal/login"
)

const (
	msgWelcome = "Welcome! I generate string sessions for Telegram user accounts.\n\n" +
		"Use /pyro for a Pyrogram session or /tele for a Telethon session.\n" +
		"Send /cancel at any time to stop."
	msgGenerating   = "🔹 Generating %s session...\nEnter your API ID:"
	msgReplaced     = "Previous login discarded.\n"
	msgAPIHash      = "Enter your API Hash:"
	msgPhone        = "Enter your phone number (e.g., +91XXXXXXXXXX):"
	msgCode         = "Enter the OTP you received. Spaces are fine, e.g. `1 2 3 4 5`:"
	msgSecondFactor = "2FA detected! Enter your password:"

	msgBadAPIID = "Invalid API ID. Please enter a valid integer."
	msgBadHash  = "The API Hash can't be empty. Enter your API Hash:"
	msgBadPhone = "That doesn't look like a phone number. Enter it with the country code, e.g. +91XXXXXXXXXX:"
	msgBadCode  = "The OTP must contain digits. Enter the OTP you received:"
	msgBadPass  = "The password can't be empty. Enter your password:"

	msgSendingCode    = "Sending OTP..."
	msgValidatingCode = "Validating OTP..."
	msgCheckingPass   = "Checking password..."

	msgRetry = "⚠️ Telegram didn't answer properly, please send that again."

	msgFailBadCredentials = "❌ Invalid API ID or API Hash."
	msgFailBadPhone       = "❌ Invalid phone number."
	msgFailBadCode        = "❌ Invalid or expired OTP."
	msgFailBadPass        = "❌ Incorrect password!"
	msgFailTimeout        = "⏱ Login timed out due to inactivity."
	msgFailOther          = "❌ Login failed."
	msgRestart            = "\nPlease restart the process with /pyro or /tele."

	msgCancelled = "Login cancelled."
	msgNoLogin   = "There is no login in progress."
	msgBusy      = "⏳ Processing, please wait..."
	msgStartErr  = "Could not start a login, please try again later."

	msgSession      = "Your %s session:\n\n`%s`\n\nSave it securely!"
	msgSavedToSelf  = "✅ Session generated! Check your Saved Messages."
	msgSessionReady = "✅ Session generated!"
)

const (
	dataCancel = "cancel"
	dataProto  = "proto:"
)

func protocolKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Pyrogram", dataProto+"pyrogram"),
			tgbotapi.NewInlineKeyboardButtonData("Telethon", dataProto+"telethon"),
		),
	)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", dataCancel),
		),
	)
}

func botCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "start", Description: "How this bot works"},
		{Command: "pyro", Description: "Generate a Pyrogram session"},
		{Command: "tele", Description: "Generate a Telethon session"},
		{Command: "cancel", Description: "Cancel the current login"},
	}
}

func startMessage(p backend.Protocol, replaced bool) string {
	msg := fmt.Sprintf(msgGenerating, p)
	if replaced {
		msg = msgReplaced + msg
	}
	return msg
}

// prompt asks for the input the stage waits for.
func prompt(stage login.Stage) string {
	switch stage {
	case login.StageAwaitingAPIHash:
		return msgAPIHash
	case login.StageAwaitingPhone:
		return msgPhone
	case login.StageAwaitingCode:
		return msgCode
	case login.StageAwaitingSecondFactor:
		return msgSecondFactor
	}
	return msgBadAPIID
}

func reprompt(stage login.Stage) string {
	switch stage {
	case login.StageAwaitingAPIID:
		return msgBadAPIID
	case login.StageAwaitingAPIHash:
		return msgBadHash
	case login.StageAwaitingPhone:
		return msgBadPhone
	case login.StageAwaitingCode:
		return msgBadCode
	case login.StageAwaitingSecondFactor:
		return msgBadPass
	}
	return msgRetry
}

func progressMessage(stage login.Stage) string {
	switch stage {
	case login.StageAwaitingPhone:
		return msgSendingCode
	case login.StageAwaitingCode:
		return msgValidatingCode
	case login.StageAwaitingSecondFactor:
		return msgCheckingPass
	}
	return ""
}

func failureMessage(kind backend.Kind) string {
	var msg string
	switch kind {
	case backend.KindBadCredentials:
		msg = msgFailBadCredentials
	case backend.KindBadPhoneNumber:
		msg = msgFailBadPhone
	case backend.KindBadOrExpiredCode:
		msg = msgFailBadCode
	case backend.KindBadSecondFactor:
		msg = msgFailBadPass
	case backend.KindTimeout:
		msg = msgFailTimeout
	default:
		msg = msgFailOther
	}
	return msg + msgRestart
}
