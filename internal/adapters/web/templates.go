package web

const unauthorizedPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authentication Required - Telegram Inbox</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100">
    <div class="min-h-screen flex items-center justify-center">
        <div class="bg-white rounded-lg shadow-lg p-8 max-w-md w-full text-center">
            <h1 class="text-2xl font-bold text-gray-900">Authentication Required</h1>
            <p class="mt-2 text-gray-600">Open the dashboard link printed by the service at startup.</p>
        </div>
    </div>
</body>
</html>`

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Telegram Inbox</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100">
<div class="max-w-3xl mx-auto p-6">
    <h1 class="text-2xl font-bold mb-4">Telegram Inbox</h1>
    <p id="status" class="text-sm text-gray-600 mb-2"></p>
    <p id="error" class="text-sm text-red-600 mb-4"></p>

    <form id="phone-form" class="step bg-white rounded shadow p-4 mb-4 hidden" data-step="phone">
        <div class="grid grid-cols-2 gap-2">
            <input name="apiId" placeholder="API ID" value="{{if .APIID}}{{.APIID}}{{end}}" class="border rounded p-2">
            <input name="apiHash" placeholder="API hash" value="{{.APIHash}}" type="password" class="border rounded p-2">
            <input name="phoneNumber" placeholder="+15551234567" class="border rounded p-2 col-span-2">
        </div>
        <button class="mt-2 bg-blue-600 text-white rounded px-4 py-2">Send code</button>
    </form>

    <form id="code-form" class="step bg-white rounded shadow p-4 mb-4 hidden" data-step="code">
        <input name="code" placeholder="Verification code" class="border rounded p-2">
        <button class="bg-blue-600 text-white rounded px-4 py-2">Sign in</button>
    </form>

    <form id="password-form" class="step bg-white rounded shadow p-4 mb-4 hidden" data-step="2fa">
        <input name="password" type="password" placeholder="2FA password" class="border rounded p-2">
        <button class="bg-blue-600 text-white rounded px-4 py-2">Check password</button>
    </form>

    <div class="step hidden" data-step="complete">
        <div class="flex gap-2 mb-4">
            <button id="refresh" class="bg-gray-700 text-white rounded px-4 py-2">Refresh</button>
            <button id="logout" class="bg-red-600 text-white rounded px-4 py-2">Log out</button>
        </div>
        <ul id="chats" class="space-y-2"></ul>
    </div>
</div>
<script>
const api = (path, body) => fetch('/api/telegram/' + path, {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify(body || {}),
}).then(r => r.json()).then(res => {
    const msg = res.rejection ? res.rejection.message : (res.message || '');
    document.getElementById('error').textContent = msg;
    if (res.state) render(res.state);
});

const formJSON = form => Object.fromEntries(new FormData(form).entries());

function render(state) {
    document.querySelectorAll('.step').forEach(el => {
        el.classList.toggle('hidden', el.dataset.step !== state.loginStep);
    });
    const who = state.session.isLoggedIn ? 'Logged in as ' + (state.userName || state.session.phoneNumber) : 'Not logged in';
    document.getElementById('status').textContent = who + (state.loading ? ' · loading…' : '');
    if (state.error) document.getElementById('error').textContent = state.error;
    const list = document.getElementById('chats');
    list.replaceChildren(...state.chats.map(chat => {
        const li = document.createElement('li');
        li.className = 'bg-white rounded shadow p-3';
        const last = chat.lastMessage ? chat.lastMessage.senderDisplayName + ': ' + chat.lastMessage.text : 'No messages';
        li.textContent = '[' + chat.kind + '] ' + chat.title + (chat.unreadCount ? ' (' + chat.unreadCount + ')' : '') + ' · ' + last;
        return li;
    }));
}

document.getElementById('phone-form').onsubmit = e => { e.preventDefault(); api('phone', formJSON(e.target)); };
document.getElementById('code-form').onsubmit = e => { e.preventDefault(); api('code', formJSON(e.target)); };
document.getElementById('password-form').onsubmit = e => { e.preventDefault(); api('password', formJSON(e.target)); };
document.getElementById('logout').onclick = () => api('logout');
document.getElementById('refresh').onclick = () => api('chats/refresh');

fetch('/api/telegram/state').then(r => r.json()).then(render);
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = e => render(JSON.parse(e.data));
</script>
</body>
</html>`
