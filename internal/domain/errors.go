package domain

import "errors"

var (
	// ErrConfiguration — отсутствует или неверна обязательная настройка.
	ErrConfiguration = errors.New("configuration error")
	// ErrCredential — шифротекст повреждён или не прошёл проверку подлинности.
	ErrCredential = errors.New("credential decryption failed")
	// ErrCredentialNotFound — для типа токена нет записи.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrRefreshFailed — не удалось обновить или сохранить токен.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrMediaCreation — Graph API не вернул id контейнера.
	ErrMediaCreation = errors.New("media container creation failed")
	// ErrPublish — Graph API не опубликовал контейнер.
	ErrPublish = errors.New("media publish failed")
	// ErrTimeout — контейнер не был готов за отведённое число попыток.
	ErrTimeout = errors.New("container status timeout")
	// ErrDuplicateVote — участник уже голосовал в этом раунде.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrNoImages — в пуле нет кандидатов.
	ErrNoImages = errors.New("no voting images")
	// ErrImageNotFound — кнопка ссылается на неизвестного кандидата.
	ErrImageNotFound = errors.New("voting image not found")
	// ErrEmptyPrompt — коллаборатор вернул пустой текст.
	ErrEmptyPrompt = errors.New("empty prompt")
)
