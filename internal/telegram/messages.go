package telegram

const (
	msgHelp = "Бот ведёт досье на игроков в мафию.\n\n" +
		"/submit — записать игру игрока\n" +
		"/resume <nickname> — все записи об игроке\n" +
		"/summary <nickname> — сводка об игроке от ИИ\n" +
		"/cancel — отменить текущую операцию"
	msgAdminHelp = "\n\nАдминистратору:\n" +
		"/show — сводка по базе и активным диалогам\n" +
		"/show <ник> — все записи об игроке\n" +
		"/allow <username> — выдать доступ\n" +
		"/revoke <username> — отозвать доступ\n" +
		"/allowlist — список доступа"

	msgUnauthorized = "У вас нет доступа к этому боту."
	msgAdminOnly    = "Команда доступна только администратору"
	msgUnknownCmd   = "Неизвестная команда. Список команд: /start"

	msgCancelled = "Операция отменена. Вы можете отправить информацию об игроке с помощью команды /submit " +
		"или же получить информацию об игроке с помощью команды /resume <nickname>."
	msgNothingToCancel = "Нет активной операции."
	msgNoSession       = "Нет активной операции. Отправьте /submit, чтобы записать игру, " +
		"или /resume <nickname>, чтобы получить информацию об игроке."
	msgTimeout = "Время ожидания истекло, операция отменена. Начните заново: /submit или /resume <nickname>."

	msgEmptyInput       = "Сообщение не должно быть пустым."
	msgInvalidSelection = "Пожалуйста, выберите один из предложенных вариантов."
	msgInvalidText      = "Пожалуйста, ответьте текстом."

	msgStored       = "База данных обновлена!"
	msgEmptyHistory = "Об игроке %s нет информации."
	msgSummarizing  = "Готовлю сводку об игроке..."
	msgServiceError = "Не удалось получить сводку, попробуйте позже."
	msgInternal     = "Что-то пошло не так, попробуйте ещё раз."
)
