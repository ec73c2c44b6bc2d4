package matchcoordinator

import "helpdesk-bot/internal/models"

const (
	BtnOfferFull    = "✅ Помочь"
	BtnOfferPartial = "❓ Отчасти готов помочь"
	BtnAccept       = "✅ Принять помощь"
	BtnFinish       = "✅ Закончить"
)

const (
	MsgFormHeader = "<b>Новая анкета:</b>"

	MsgOfferNotice = "На вашу анкету откликнулся дежурный!\nЕго рейтинг: %s\nОн %s.  Принять помощь?"
	AnsOfferSent   = "Вы откликнулись на анкету. Ожидайте ответа пользователя."
	AnsOfferFailed = "Произошла ошибка при отправке уведомления пользователю."

	MsgAcceptedToResponder = "На Ваше предложение помощи согласились! Telegram для связи: @%s"
	MsgAcceptedToApplicant = "Вы успешно приняли, ожидайте пока с вами свяжутся"
	AnsAccepted            = "Вы приняли помощь. Контакты пользователя отправлены помощнику."
	AnsSendFailed          = "Произошла ошибка при отправке сообщения."

	MsgReviewPrompt = "Пожалуйста, оставьте отзыв о @%s:"
	MsgScorePrompt  = "Пожалуйста, оцените помощь от 1 до 5:"
	MsgReviewThanks = "Спасибо за ваш отзыв!"

	// UnknownContact stands in for an applicant without a handle.
	UnknownContact = "не указан"
)

var kindPhrases = map[models.HelpKind]string{
	models.HelpFull:    "готов помочь",
	models.HelpPartial: "отчасти готов помочь",
}

// Delivery targets, used as metric labels.
const (
	targetModeration = "moderation"
	targetApplicant  = "applicant"
	targetResponder  = "responder"
)
