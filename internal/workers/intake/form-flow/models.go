package formflow

const StartButton = "📝 Отправить анкету"

const (
	MsgPrivateOnly = "Заполнение анкеты разрешено только в личных сообщениях с ботом."
	MsgGreeting    = "Привет! Нажмите кнопку, чтобы отправить анкету."

	MsgUsernamePrompt = "У вас не установлен username в Telegram. Пожалуйста, укажите ваш username (начинающийся с @):"
	MsgUsernameRetry  = "Username должен начинаться с @. Пожалуйста, укажите ваш username:"

	MsgFullNamePrompt = "Пожалуйста, введите ваше ФИО (Фамилия Имя Отчество):"
	MsgFullNameFormat = "Пожалуйста, введите ФИО в формате: Фамилия Имя Отчество"

	MsgStatusPrompt = "Укажите ваш статус участника:"
	MsgSeasonPrompt = "Укажите номер сезона участия (от 1 до 5):"

	MsgPhonePrompt = "Укажите ваш контактный телефон (пример: 79141234567):"
	MsgPhonePrefix = "Номер телефона должен начинаться с 7 или 8."
	MsgPhoneDigits = "Номер телефона должен состоять только из цифр."

	MsgDatesPrompt   = "Укажите сроки пребывания в столице (пример: 01.01.2024 - 15.01.2024):"
	MsgDatesPattern  = "Пожалуйста, введите сроки пребывания в формате: ДД.ММ.ГГГГ - ДД.ММ.ГГГГ"
	MsgDatesCalendar = "Неверный формат даты. Пожалуйста, используйте формат ДД.ММ.ГГГГ"
	MsgDatesOrder    = "Первая дата не может быть позже второй."

	MsgRequestPrompt = "Выберите тип запроса или укажите свой:"

	MsgSubmitted    = "Спасибо! Ваша анкета отправлена на рассмотрение."
	MsgSubmitFailed = "Произошла ошибка при отправке анкеты. Пожалуйста, попробуйте позже."
)

var (
	StatusOptions  = []string{"Финалист", "Полуфиналист", "Победитель"}
	SeasonOptions  = []string{"1", "2", "3", "4", "5"}
	RequestOptions = []string{"Встреча", "Гостиницы", "Маршруты", "Культурная программа", "Своё"}
)
